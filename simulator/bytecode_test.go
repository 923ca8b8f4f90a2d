package simulator

import "github.com/ethereum/go-ethereum/core/vm"

// terminalSegmentPrologueLen is the fixed instruction length (excluding the
// appended data) of the JUMPDEST + CODECOPY + RETURN/REVERT sequence
// terminalSegment builds.
const terminalSegmentPrologueLen = 14

// terminalSegment builds runtime bytecode that ignores calldata and returns
// data via the given terminal opcode (vm.RETURN or vm.REVERT). The leading
// JUMPDEST makes the segment a valid JUMPI target; dataOffset is this
// segment's data's absolute byte offset within the full contract code it
// will be concatenated into. Grounded on the CODECOPY+RETURN idiom
// go-ethereum's own core/vm/runtime tests use to embed fixture return data
// directly in hand-assembled bytecode.
func terminalSegment(data []byte, terminal vm.OpCode, dataOffset int) []byte {
	length := len(data)
	code := []byte{
		byte(vm.JUMPDEST),
		byte(vm.PUSH2), byte(length >> 8), byte(length),
		byte(vm.DUP1),
		byte(vm.PUSH2), byte(dataOffset >> 8), byte(dataOffset),
		byte(vm.PUSH1), 0x00,
		byte(vm.CODECOPY),
		byte(vm.PUSH1), 0x00,
		byte(terminal),
	}
	return append(code, data...)
}

// standaloneContract wraps terminalSegment for a contract with exactly one
// behavior regardless of calldata — no selector dispatch needed because only
// one function on the address is ever called across a round trip (the
// Approve step's ERC-20 approve()).
func standaloneContract(data []byte, terminal vm.OpCode) []byte {
	return terminalSegment(data, terminal, terminalSegmentPrologueLen)
}

// buildRouterContract assembles minimal selector-dispatch bytecode for a
// stub V2 router: calls matching buySelector return buyReturn via RETURN
// (the Buy step); calls matching sellSelector return sellReturn via
// sellTerminal (RETURN for a clean sell, REVERT for a sell-side honeypot).
// Anything else reverts with empty data. The dispatch shifts the first
// calldata word right by 224 bits to isolate the 4-byte function selector,
// the same trick Solidity's own compiler emits for a public function table.
// dataPad zero (STOP) bytes separate buyReturn from the sell segment: JUMPDEST
// analysis reads embedded data as code, so a data byte in the PUSH1..PUSH32
// range would otherwise swallow the sell JUMPDEST.
func buildRouterContract(buySelector, buyReturn []byte, sellSelector, sellReturn []byte, sellTerminal vm.OpCode) []byte {
	const head = 33
	const dataPad = 32

	buyDest := head
	buyDataOffset := buyDest + terminalSegmentPrologueLen
	sellDest := buyDataOffset + len(buyReturn) + dataPad
	sellDataOffset := sellDest + terminalSegmentPrologueLen

	code := []byte{
		byte(vm.PUSH1), 0x00,
		byte(vm.CALLDATALOAD),
		byte(vm.PUSH1), 0xE0,
		byte(vm.SHR),
		byte(vm.DUP1),
		byte(vm.PUSH4), buySelector[0], buySelector[1], buySelector[2], buySelector[3],
		byte(vm.EQ),
		byte(vm.PUSH2), byte(buyDest >> 8), byte(buyDest),
		byte(vm.JUMPI),
		byte(vm.DUP1),
		byte(vm.PUSH4), sellSelector[0], sellSelector[1], sellSelector[2], sellSelector[3],
		byte(vm.EQ),
		byte(vm.PUSH2), byte(sellDest >> 8), byte(sellDest),
		byte(vm.JUMPI),
		byte(vm.PUSH1), 0x00,
		byte(vm.PUSH1), 0x00,
		byte(vm.REVERT),
	}
	if len(code) != head {
		panic("buildRouterContract: dispatch prologue length drifted")
	}

	code = append(code, terminalSegment(buyReturn, vm.RETURN, buyDataOffset)...)
	code = append(code, make([]byte, dataPad)...)
	code = append(code, terminalSegment(sellReturn, sellTerminal, sellDataOffset)...)
	return code
}
