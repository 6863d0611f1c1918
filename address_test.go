package smarthandles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsRoundTrip(t *testing.T) {
	key := KeyHashCredential(testHash(1))
	script := ScriptHashCredential(testHash(2))
	testDefs := []struct {
		name    string
		payment Credential
		stake   *StakeCredential
	}{
		{name: "key only", payment: key},
		{name: "script only", payment: script},
		{name: "key with key stake", payment: key, stake: InlineStake(KeyHashCredential(testHash(3)))},
		{name: "script with script stake", payment: script, stake: InlineStake(ScriptHashCredential(testHash(4)))},
		{name: "key with pointer", payment: key, stake: &StakeCredential{Pointer: &Pointer{Slot: 2498243, TxIndex: 27, CertIndex: 3}}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			addr, err := AddressFromCredentials(testDef.payment, testDef.stake, Testnet)
			require.NoError(t, err)
			payment, stake, err := CredentialsFromAddress(addr)
			require.NoError(t, err)
			assert.Equal(t, testDef.payment, payment)
			assert.Equal(t, testDef.stake, stake)
		})
	}
}

func TestAddressPlutusDataRoundTrip(t *testing.T) {
	addrs := []struct {
		payment Credential
		stake   *StakeCredential
	}{
		{KeyHashCredential(testHash(1)), nil},
		{KeyHashCredential(testHash(1)), InlineStake(KeyHashCredential(testHash(9)))},
		{ScriptHashCredential(testHash(5)), InlineStake(ScriptHashCredential(testHash(6)))},
	}
	for _, network := range []Network{Testnet, Mainnet} {
		for _, a := range addrs {
			addr, err := AddressFromCredentials(a.payment, a.stake, network)
			require.NoError(t, err)
			pd, err := AddressToPlutusData(addr)
			require.NoError(t, err)
			back, err := PlutusDataToAddress(pd, network)
			require.NoError(t, err)
			assert.Equal(t, addr.String(), back.String())
		}
	}
}

func TestAddressToPlutusDataRejectsPointer(t *testing.T) {
	addr, err := AddressFromCredentials(
		KeyHashCredential(testHash(1)),
		&StakeCredential{Pointer: &Pointer{Slot: 1, TxIndex: 2, CertIndex: 3}},
		Testnet,
	)
	require.NoError(t, err)
	_, err = AddressToPlutusData(addr)
	require.ErrorIs(t, err, ErrUnsupportedCredential)
}

func TestPaymentKeyHash(t *testing.T) {
	hash, err := PaymentKeyHash(testKeyAddress(t, 7))
	require.NoError(t, err)
	assert.Equal(t, testHash(7), hash)

	v := testSingleValidator(t)
	_, err = PaymentKeyHash(v.Address)
	require.ErrorIs(t, err, ErrUnsupportedCredential)

	_, err = PaymentKeyHash(RewardAddress(KeyHashCredential(testHash(7)), Testnet))
	require.ErrorIs(t, err, ErrUnsupportedCredential)
}

func TestAddressFromCredentialsValidatesLength(t *testing.T) {
	_, err := AddressFromCredentials(KeyHashCredential([]byte{1, 2, 3}), nil, Testnet)
	require.Error(t, err)
}

func TestParseNetwork(t *testing.T) {
	for name, expected := range map[string]Network{
		"mainnet": Mainnet,
		"Preprod": Testnet,
		"preview": Testnet,
	} {
		got, err := ParseNetwork(name)
		require.NoError(t, err)
		assert.Equal(t, expected, got, name)
	}
	_, err := ParseNetwork("moon")
	require.Error(t, err)
}

func TestPointerVarNat(t *testing.T) {
	for _, p := range []Pointer{
		{},
		{Slot: 127, TxIndex: 128, CertIndex: 16384},
		{Slot: 1 << 40, TxIndex: 1, CertIndex: 0},
	} {
		got, err := decodePointer(encodePointer(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := decodePointer([]byte{0x81})
	require.Error(t, err)
}
