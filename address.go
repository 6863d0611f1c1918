package smarthandles

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
)

const credentialHashSize = 28

type Network byte

const (
	Testnet Network = 0
	Mainnet Network = 1
)

// ParseNetwork accepts the usual Cardano network names.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(name) {
	case "mainnet":
		return Mainnet, nil
	case "preprod", "preview", "testnet", "custom":
		return Testnet, nil
	default:
		return Testnet, fmt.Errorf("unknown network %q", name)
	}
}

func (n Network) String() string {
	if n == Mainnet {
		return "mainnet"
	}
	return "testnet"
}

func (n Network) addressHrp() string {
	if n == Mainnet {
		return "addr"
	}
	return "addr_test"
}

func (n Network) stakeHrp() string {
	if n == Mainnet {
		return "stake"
	}
	return "stake_test"
}

type CredentialType int

const (
	KeyCredential CredentialType = iota
	ScriptCredential
)

type Credential struct {
	Type CredentialType
	Hash []byte
}

func KeyHashCredential(hash []byte) Credential {
	return Credential{Type: KeyCredential, Hash: hash}
}

func ScriptHashCredential(hash []byte) Credential {
	return Credential{Type: ScriptCredential, Hash: hash}
}

// Pointer locates a stake registration certificate on chain.
type Pointer struct {
	Slot      uint64
	TxIndex   uint64
	CertIndex uint64
}

// StakeCredential holds exactly one of Inline and Pointer.
type StakeCredential struct {
	Inline  *Credential
	Pointer *Pointer
}

func InlineStake(cred Credential) *StakeCredential {
	return &StakeCredential{Inline: &cred}
}

func newAddress(addrType byte, payment, staking []byte, network Network, hrp string) Address.Address {
	return Address.Address{
		PaymentPart: payment,
		StakingPart: staking,
		Network:     byte(network),
		AddressType: addrType,
		HeaderByte:  addrType<<4 | byte(network),
		Hrp:         hrp,
	}
}

// AddressFromCredentials builds a payment address.
func AddressFromCredentials(payment Credential, stake *StakeCredential, network Network) (Address.Address, error) {
	if len(payment.Hash) != credentialHashSize {
		return Address.Address{}, fmt.Errorf("payment credential must be %d bytes, got %d", credentialHashSize, len(payment.Hash))
	}
	isScript := payment.Type == ScriptCredential
	switch {
	case stake == nil:
		var addrType byte = Address.KEY_NONE
		if isScript {
			addrType = Address.SCRIPT_NONE
		}
		return newAddress(addrType, payment.Hash, nil, network, network.addressHrp()), nil
	case stake.Inline != nil:
		if len(stake.Inline.Hash) != credentialHashSize {
			return Address.Address{}, fmt.Errorf("stake credential must be %d bytes, got %d", credentialHashSize, len(stake.Inline.Hash))
		}
		var addrType byte
		switch {
		case !isScript && stake.Inline.Type == KeyCredential:
			addrType = Address.KEY_KEY
		case isScript && stake.Inline.Type == KeyCredential:
			addrType = Address.SCRIPT_KEY
		case !isScript && stake.Inline.Type == ScriptCredential:
			addrType = Address.KEY_SCRIPT
		default:
			addrType = Address.SCRIPT_SCRIPT
		}
		return newAddress(addrType, payment.Hash, stake.Inline.Hash, network, network.addressHrp()), nil
	case stake.Pointer != nil:
		var addrType byte = Address.KEY_POINTER
		if isScript {
			addrType = Address.SCRIPT_POINTER
		}
		ptr := encodePointer(*stake.Pointer)
		return newAddress(addrType, payment.Hash, ptr, network, network.addressHrp()), nil
	default:
		return Address.Address{}, errors.New("empty stake credential")
	}
}

// RewardAddress builds the stake address of a credential.
func RewardAddress(stake Credential, network Network) Address.Address {
	var addrType byte = Address.NONE_KEY
	if stake.Type == ScriptCredential {
		addrType = Address.NONE_SCRIPT
	}
	return newAddress(addrType, nil, stake.Hash, network, network.stakeHrp())
}

// CredentialsFromAddress splits a payment address into its credentials.
func CredentialsFromAddress(addr Address.Address) (Credential, *StakeCredential, error) {
	var payment Credential
	switch addr.AddressType {
	case Address.KEY_KEY, Address.KEY_SCRIPT, Address.KEY_POINTER, Address.KEY_NONE:
		payment = KeyHashCredential(addr.PaymentPart)
	case Address.SCRIPT_KEY, Address.SCRIPT_SCRIPT, Address.SCRIPT_POINTER, Address.SCRIPT_NONE:
		payment = ScriptHashCredential(addr.PaymentPart)
	default:
		return Credential{}, nil, fmt.Errorf("%w: address type %d has no payment credential", ErrUnsupportedCredential, addr.AddressType)
	}
	switch addr.AddressType {
	case Address.KEY_KEY, Address.SCRIPT_KEY:
		return payment, InlineStake(KeyHashCredential(addr.StakingPart)), nil
	case Address.KEY_SCRIPT, Address.SCRIPT_SCRIPT:
		return payment, InlineStake(ScriptHashCredential(addr.StakingPart)), nil
	case Address.KEY_POINTER, Address.SCRIPT_POINTER:
		ptr, err := decodePointer(addr.StakingPart)
		if err != nil {
			return Credential{}, nil, err
		}
		return payment, &StakeCredential{Pointer: &ptr}, nil
	default:
		return payment, nil, nil
	}
}

// PaymentKeyHash returns the verification key hash of a key address.
func PaymentKeyHash(addr Address.Address) ([]byte, error) {
	payment, _, err := CredentialsFromAddress(addr)
	if err != nil {
		return nil, err
	}
	if payment.Type != KeyCredential {
		return nil, fmt.Errorf("%w: payment credential is a script", ErrUnsupportedCredential)
	}
	return payment.Hash, nil
}

func credentialToPlutusData(cred Credential) PlutusData.PlutusData {
	if cred.Type == ScriptCredential {
		return constrData(1, bytesData(cred.Hash))
	}
	return constrData(0, bytesData(cred.Hash))
}

func credentialFromPlutusData(pd PlutusData.PlutusData) (Credential, error) {
	index, fields, err := asConstr(pd)
	if err != nil {
		return Credential{}, err
	}
	if len(fields) != 1 || index > 1 {
		return Credential{}, fmt.Errorf("malformed credential: constructor %d with %d fields", index, len(fields))
	}
	hash, err := asBytes(fields[0])
	if err != nil {
		return Credential{}, err
	}
	if index == 1 {
		return ScriptHashCredential(hash), nil
	}
	return KeyHashCredential(hash), nil
}

// AddressToPlutusData encodes addr in the on-chain Address shape. Pointer
// stake credentials are rejected.
func AddressToPlutusData(addr Address.Address) (PlutusData.PlutusData, error) {
	payment, stake, err := CredentialsFromAddress(addr)
	if err != nil {
		return PlutusData.PlutusData{}, err
	}
	var stakeData *PlutusData.PlutusData
	if stake != nil {
		if stake.Pointer != nil || stake.Inline == nil {
			return PlutusData.PlutusData{}, fmt.Errorf("%w: pointer stake credentials", ErrUnsupportedCredential)
		}
		inline := constrData(0, credentialToPlutusData(*stake.Inline))
		stakeData = &inline
	}
	return constrData(0, credentialToPlutusData(payment), maybeData(stakeData)), nil
}

// PlutusDataToAddress decodes an on-chain Address for the given network.
func PlutusDataToAddress(pd PlutusData.PlutusData, network Network) (Address.Address, error) {
	fields, err := asConstrN(pd, 0, 2)
	if err != nil {
		return Address.Address{}, fmt.Errorf("address: %w", err)
	}
	payment, err := credentialFromPlutusData(fields[0])
	if err != nil {
		return Address.Address{}, fmt.Errorf("payment credential: %w", err)
	}
	stakeData, err := asMaybe(fields[1])
	if err != nil {
		return Address.Address{}, fmt.Errorf("stake credential: %w", err)
	}
	if stakeData == nil {
		return AddressFromCredentials(payment, nil, network)
	}
	index, stakeFields, err := asConstr(*stakeData)
	if err != nil {
		return Address.Address{}, fmt.Errorf("stake credential: %w", err)
	}
	switch {
	case index == 0 && len(stakeFields) == 1:
		cred, err := credentialFromPlutusData(stakeFields[0])
		if err != nil {
			return Address.Address{}, fmt.Errorf("stake credential: %w", err)
		}
		return AddressFromCredentials(payment, InlineStake(cred), network)
	case index == 1 && len(stakeFields) == 3:
		var parts [3]uint64
		for i, f := range stakeFields {
			n, err := asInt(f)
			if err != nil {
				return Address.Address{}, fmt.Errorf("stake pointer: %w", err)
			}
			if n.Sign() < 0 || !n.IsUint64() {
				return Address.Address{}, fmt.Errorf("stake pointer component %s out of range", n.String())
			}
			parts[i] = n.Uint64()
		}
		ptr := Pointer{Slot: parts[0], TxIndex: parts[1], CertIndex: parts[2]}
		return AddressFromCredentials(payment, &StakeCredential{Pointer: &ptr}, network)
	default:
		return Address.Address{}, fmt.Errorf("malformed stake credential: constructor %d with %d fields", index, len(stakeFields))
	}
}

func encodePointer(p Pointer) []byte {
	var out []byte
	for _, n := range []uint64{p.Slot, p.TxIndex, p.CertIndex} {
		out = append(out, encodeVarNat(n)...)
	}
	return out
}

// encodeVarNat writes n as big-endian base-128 with continuation bits.
func encodeVarNat(n uint64) []byte {
	buf := []byte{byte(n & 0x7f)}
	n >>= 7
	for n > 0 {
		buf = append([]byte{byte(n&0x7f) | 0x80}, buf...)
		n >>= 7
	}
	return buf
}

func decodePointer(b []byte) (Pointer, error) {
	var parts [3]uint64
	pos := 0
	for i := range parts {
		n := new(big.Int)
		for {
			if pos >= len(b) {
				return Pointer{}, errors.New("truncated stake pointer")
			}
			c := b[pos]
			pos++
			n.Lsh(n, 7).Or(n, big.NewInt(int64(c&0x7f)))
			if c&0x80 == 0 {
				break
			}
		}
		if !n.IsUint64() {
			return Pointer{}, errors.New("stake pointer overflow")
		}
		parts[i] = n.Uint64()
	}
	if pos != len(b) {
		return Pointer{}, errors.New("trailing bytes in stake pointer")
	}
	return Pointer{Slot: parts[0], TxIndex: parts[1], CertIndex: parts[2]}, nil
}
