package solana

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrMalformedTransaction is returned when wire bytes cannot be parsed.
var ErrMalformedTransaction = errors.New("malformed transaction")

// versionPrefixMask marks a versioned message in the first message byte.
const versionPrefixMask = 0x80

// AccountMeta is an account reference of an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Meta builds an AccountMeta.
func Meta(pk PublicKey, signer, writable bool) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: signer, IsWritable: writable}
}

// Instruction is an uncompiled program instruction.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts signer and read-only accounts.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash PublicKey
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a legacy message with payer as fee payer.
// Accounts are ordered: writable signers, read-only signers, writable
// non-signers, read-only non-signers; payer first.
func NewMessage(payer PublicKey, instructions []Instruction, recentBlockhash string) (*Message, error) {
	blockhash, err := PublicKeyFromBase58(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	type entry struct {
		pk       PublicKey
		signer   bool
		writable bool
	}
	var order []PublicKey
	metas := make(map[PublicKey]*entry)
	add := func(pk PublicKey, signer, writable bool) {
		if e, ok := metas[pk]; ok {
			e.signer = e.signer || signer
			e.writable = e.writable || writable
			return
		}
		metas[pk] = &entry{pk: pk, signer: signer, writable: writable}
		order = append(order, pk)
	}

	add(payer, true, true)
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc.PublicKey, acc.IsSigner, acc.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}

	var wSigners, rSigners, wOthers, rOthers []PublicKey
	for _, pk := range order {
		e := metas[pk]
		switch {
		case pk == payer:
			// placed first below
		case e.signer && e.writable:
			wSigners = append(wSigners, pk)
		case e.signer:
			rSigners = append(rSigners, pk)
		case e.writable:
			wOthers = append(wOthers, pk)
		default:
			rOthers = append(rOthers, pk)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, payer)
	keys = append(keys, wSigners...)
	keys = append(keys, rSigners...)
	keys = append(keys, wOthers...)
	keys = append(keys, rOthers...)
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}

	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(1 + len(wSigners) + len(rSigners)),
			NumReadonlySignedAccounts:   uint8(len(rSigners)),
			NumReadonlyUnsignedAccounts: uint8(len(rOthers)),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, acc := range ix.Accounts {
			compiled.Accounts[i] = index[acc.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return msg, nil
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	b := make([]byte, 0, 3+1+32*len(m.AccountKeys)+32+64*len(m.Instructions))
	b = append(b, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)
	b = AppendCompactU16(b, len(m.AccountKeys))
	for _, pk := range m.AccountKeys {
		b = append(b, pk[:]...)
	}
	b = append(b, m.RecentBlockhash[:]...)
	b = AppendCompactU16(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIDIndex)
		b = AppendCompactU16(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = AppendCompactU16(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	return b
}

// SignMessage signs a legacy message with the given signers, in message key
// order, and returns the wire transaction and its first signature (base58).
func SignMessage(m *Message, signers ...*Keypair) ([]byte, string, error) {
	n := int(m.Header.NumRequiredSignatures)
	if n == 0 || n > len(m.AccountKeys) {
		return nil, "", fmt.Errorf("%w: %d required signatures", ErrMalformedTransaction, n)
	}

	bySigner := make(map[PublicKey]*Keypair, len(signers))
	for _, s := range signers {
		bySigner[s.PublicKey()] = s
	}

	payload := m.Serialize()
	sigs := make([][]byte, n)
	for i := 0; i < n; i++ {
		kp, ok := bySigner[m.AccountKeys[i]]
		if !ok {
			return nil, "", fmt.Errorf("%w: missing signer %s", ErrNoSigner, m.AccountKeys[i])
		}
		sig, err := kp.Sign(payload)
		if err != nil {
			return nil, "", err
		}
		sigs[i] = sig
	}

	wire := AppendCompactU16(make([]byte, 0, 1+64*n+len(payload)), n)
	for _, sig := range sigs {
		wire = append(wire, sig...)
	}
	wire = append(wire, payload...)
	return wire, EncodeSignature(sigs[0]), nil
}

// SignWireTransaction fills signer's signature slot in a serialized legacy or
// versioned (v0) transaction, such as one returned by a swap API.
func SignWireTransaction(raw []byte, signer *Keypair) ([]byte, string, error) {
	numSigs, n, err := ReadCompactU16(raw)
	if err != nil {
		return nil, "", err
	}
	sigStart := n
	msgStart := sigStart + 64*numSigs
	if numSigs == 0 || msgStart >= len(raw) {
		return nil, "", fmt.Errorf("%w: %d signatures, %d bytes", ErrMalformedTransaction, numSigs, len(raw))
	}
	message := raw[msgStart:]

	// Header follows an optional version prefix byte
	pos := 0
	if message[0]&versionPrefixMask != 0 {
		pos = 1
	}
	if len(message) < pos+3 {
		return nil, "", fmt.Errorf("%w: short header", ErrMalformedTransaction)
	}
	required := int(message[pos])
	pos += 3
	numKeys, kn, err := ReadCompactU16(message[pos:])
	if err != nil {
		return nil, "", err
	}
	pos += kn
	if required > numKeys || len(message) < pos+32*numKeys || required > numSigs {
		return nil, "", fmt.Errorf("%w: account keys", ErrMalformedTransaction)
	}

	me := signer.PublicKey()
	slot := -1
	for i := 0; i < required; i++ {
		var pk PublicKey
		copy(pk[:], message[pos+32*i:pos+32*(i+1)])
		if pk == me {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, "", fmt.Errorf("%w: %s is not a required signer", ErrNoSigner, me)
	}

	sig, err := signer.Sign(message)
	if err != nil {
		return nil, "", err
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	copy(out[sigStart+64*slot:], sig)

	first := out[sigStart : sigStart+64]
	return out, EncodeSignature(first), nil
}

// EncodeSignature returns the base58 form of a transaction signature.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// AppendCompactU16 appends n in Solana's compact-u16 (shortvec) encoding.
func AppendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}

// ReadCompactU16 decodes a compact-u16 and returns the value and bytes consumed.
func ReadCompactU16(b []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated compact-u16", ErrMalformedTransaction)
		}
		v |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: compact-u16 overflow", ErrMalformedTransaction)
}

// ComputeUnitLimit builds a ComputeBudget SetComputeUnitLimit instruction.
func ComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

// ComputeUnitPrice builds a ComputeBudget SetComputeUnitPrice instruction.
func ComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

// CreateAssociatedTokenAccountIdempotent builds the ATA program's idempotent create instruction.
func CreateAssociatedTokenAccountIdempotent(payer, ata, owner, mint, tokenProgram PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			Meta(payer, true, true),
			Meta(ata, false, true),
			Meta(owner, false, false),
			Meta(mint, false, false),
			Meta(SystemProgramID, false, false),
			Meta(tokenProgram, false, false),
		},
		Data: []byte{1},
	}
}

// SystemTransfer builds a System program transfer of lamports.
func SystemTransfer(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data, 2)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{Meta(from, true, true), Meta(to, false, true)},
		Data:      data,
	}
}

// SyncNative builds an SPL token SyncNative instruction for a wrapped SOL account.
func SyncNative(account PublicKey) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts:  []AccountMeta{Meta(account, false, true)},
		Data:      []byte{17},
	}
}

// CloseAccount builds an SPL token CloseAccount instruction returning rent to dest.
func CloseAccount(account, dest, owner PublicKey) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts:  []AccountMeta{Meta(account, false, true), Meta(dest, false, true), Meta(owner, true, false)},
		Data:      []byte{9},
	}
}
