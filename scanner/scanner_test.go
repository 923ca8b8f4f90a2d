package scanner

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanEmptyBytecodeReturnsZeroPenalty(t *testing.T) {
	result := Scan(nil)
	require.Equal(t, 0, result.Penalty)
	require.Empty(t, result.Findings)
}

func TestScanDetectsSetBotsSelector(t *testing.T) {
	raw, err := hex.DecodeString("6080604052" + "974d396d" + "6000356000351460")
	require.NoError(t, err)

	result := Scan(raw)
	require.Equal(t, Penalty, result.Penalty)
	require.Contains(t, result.Findings, "setBots detected")
}

func TestScanDetectsMultipleSelectorsButPenaltySaturates(t *testing.T) {
	raw, err := hex.DecodeString("974d396d" + "3d18678e" + "e4997dc5")
	require.NoError(t, err)

	result := Scan(raw)
	require.Equal(t, Penalty, result.Penalty)
	require.Len(t, result.Findings, 3)
}

func TestScanDetectsBlacklistStringPattern(t *testing.T) {
	raw := append([]byte{0x60, 0x80, 0x60, 0x40}, []byte("blacklist")...)
	result := Scan(raw)
	require.Equal(t, Penalty, result.Penalty)
	require.Contains(t, result.Findings, "Blacklist storage pattern detected")
}

func TestScanCleanBytecodeHasZeroPenalty(t *testing.T) {
	raw, err := hex.DecodeString("6080604052348015600f57600080fd5b50")
	require.NoError(t, err)

	result := Scan(raw)
	require.Equal(t, 0, result.Penalty)
	require.Empty(t, result.Findings)
}
