package smarthandles

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Salvionied/apollo/serialization/Address"
	apolloCbor "github.com/Salvionied/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

const plutusV2ScriptTag = 0x02

// Script is a compiled PlutusV2 validator, CBOR-wrapped once.
type Script struct {
	CBOR []byte
	Hash []byte
}

func (s Script) Credential() Credential {
	return ScriptHashCredential(s.Hash)
}

type SingleValidator struct {
	Script  Script
	Address Address.Address
	Network Network
}

// BatchValidators pairs the spending validator with the withdrawal
// validator it trusts. The spend address is staked under the withdrawal
// validator's credential.
type BatchValidators struct {
	Spending      Script
	SpendAddress  Address.Address
	Withdrawal    Script
	RewardAddress Address.Address
	Network       Network
}

// NewScript decodes compiled code given as hex. Raw flat, single-wrapped
// and double-wrapped forms are all accepted.
func NewScript(compiledHex string) (Script, error) {
	raw, err := hex.DecodeString(compiledHex)
	if err != nil {
		return Script{}, fmt.Errorf("invalid script hex: %w", err)
	}
	if len(raw) == 0 {
		return Script{}, errors.New("empty script")
	}
	single, err := singleCborWrap(raw)
	if err != nil {
		return Script{}, err
	}
	return Script{CBOR: single, Hash: scriptHash(single)}, nil
}

func singleCborWrap(raw []byte) ([]byte, error) {
	var inner []byte
	if err := apolloCbor.Unmarshal(raw, &inner); err != nil {
		// Not a CBOR byte string, so this is the bare program.
		return apolloCbor.Marshal(raw)
	}
	var innermost []byte
	if err := apolloCbor.Unmarshal(inner, &innermost); err == nil {
		return inner, nil
	}
	return raw, nil
}

func scriptHash(single []byte) []byte {
	h, err := blake2b.New(credentialHashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte{plutusV2ScriptTag})
	h.Write(single)
	return h.Sum(nil)
}

// ResolveSingleValidator derives the spend address of the single mode
// validator. stake is optional.
func ResolveSingleValidator(compiledHex string, network Network, stake *Credential) (SingleValidator, error) {
	script, err := NewScript(compiledHex)
	if err != nil {
		return SingleValidator{}, err
	}
	var stakeCred *StakeCredential
	if stake != nil {
		stakeCred = InlineStake(*stake)
	}
	addr, err := AddressFromCredentials(script.Credential(), stakeCred, network)
	if err != nil {
		return SingleValidator{}, err
	}
	return SingleValidator{Script: script, Address: addr, Network: network}, nil
}

// ResolveBatchValidators derives the spend and reward addresses of the
// batch mode validator pair.
func ResolveBatchValidators(spendingHex, withdrawalHex string, network Network) (BatchValidators, error) {
	spending, err := NewScript(spendingHex)
	if err != nil {
		return BatchValidators{}, fmt.Errorf("spending script: %w", err)
	}
	withdrawal, err := NewScript(withdrawalHex)
	if err != nil {
		return BatchValidators{}, fmt.Errorf("withdrawal script: %w", err)
	}
	spendAddr, err := AddressFromCredentials(
		spending.Credential(),
		InlineStake(withdrawal.Credential()),
		network,
	)
	if err != nil {
		return BatchValidators{}, err
	}
	return BatchValidators{
		Spending:      spending,
		SpendAddress:  spendAddr,
		Withdrawal:    withdrawal,
		RewardAddress: RewardAddress(withdrawal.Credential(), network),
		Network:       network,
	}, nil
}
