package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

var funcErrorString = w3.MustNewFunc("Error(string)", "")

type dataError struct {
	msg  string
	data string
}

func (e dataError) Error() string          { return e.msg }
func (e dataError) ErrorCode() int         { return 3 }
func (e dataError) ErrorData() interface{} { return e.data }

func TestDecodeRevertReasonString(t *testing.T) {
	data, err := funcErrorString.EncodeArgs("Pausable: paused")
	require.NoError(t, err)

	rev := DecodeRevert(data)
	assert.Equal(t, "Pausable: paused", rev.Reason)
	assert.Equal(t, selectorError, rev.Selector)
	assert.True(t, IsPauseRevert(rev))
	assert.False(t, IsAgentRoleRevert(rev))
}

func TestDecodeRevertCustomError(t *testing.T) {
	data := crypto.Keccak256([]byte("EnforcedPause()"))[:4]

	rev := DecodeRevert(data)
	assert.Equal(t, "EnforcedPause", rev.Reason)
	assert.True(t, IsPauseRevert(rev))

	unknown := DecodeRevert([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Empty(t, unknown.Reason)
	assert.Contains(t, unknown.Error(), "custom error 0xdeadbeef")
}

func TestAsRevertFromRPCDataError(t *testing.T) {
	data, err := funcErrorString.EncodeArgs("AgentRole: caller does not have the Agent role")
	require.NoError(t, err)

	rpcErr := fmt.Errorf("eth_call: %w", dataError{msg: "execution reverted", data: hexutil.Encode(data)})

	rev, ok := AsRevert(rpcErr)
	require.True(t, ok)
	assert.Equal(t, "AgentRole: caller does not have the Agent role", rev.Reason)
	assert.True(t, IsAgentRoleRevert(rpcErr))
}

func TestAsRevertFromMessageOnly(t *testing.T) {
	rev, ok := AsRevert(errors.New("execution reverted: Pausable: paused"))
	require.True(t, ok)
	assert.Equal(t, "Pausable: paused", rev.Reason)

	_, ok = AsRevert(errors.New("dial tcp: connection refused"))
	assert.False(t, ok)
}

func TestPauseRevertIgnoresNotPaused(t *testing.T) {
	assert.False(t, IsPauseRevert(&RevertError{Reason: "Pausable: not paused"}))
	assert.True(t, IsPauseRevert(&RevertError{Reason: "Pausable: token is paused"}))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	var rev *RevertError
	assert.ErrorAs(t, classify("op", errors.New("execution reverted: Ownable: caller is not the owner")), &rev)

	assert.True(t, trexerr.IsTransient(classify("op", errors.New("nonce too low"))))
	assert.True(t, trexerr.IsTransient(classify("op", errors.New("Post \"http://node\": EOF"))))

	plain := classify("op", errors.New("method not found"))
	assert.False(t, trexerr.IsTransient(plain))
	assert.Contains(t, plain.Error(), "op: method not found")
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1000", 18, "1000000000000000000000"},
		{"0.5", 6, "500000"},
		{"100", 0, "100"},
		{".25", 2, "25"},
	}
	for _, tc := range tests {
		got, err := ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}

	_, err := ParseUnits("1.0000001", 6)
	assert.Error(t, err)
	_, err = ParseUnits("-1", 18)
	assert.Error(t, err)
	_, err = ParseUnits("abc", 18)
	assert.Error(t, err)

	amount, _ := ParseUnits("1000", 18)
	assert.Equal(t, "1000", w3.FromWei(amount, 18))
	half, _ := ParseUnits("0.5", 6)
	assert.Equal(t, "0.5", w3.FromWei(half, 6))
}

func TestArtifactsFirstRootWins(t *testing.T) {
	local := t.TempDir()
	vendored := t.TempDir()

	writeArtifact(t, filepath.Join(local, "contracts", "token", "Token.sol"), "Token", "0x6001")
	writeArtifact(t, filepath.Join(vendored, "contracts", "Token.sol"), "Token", "0x6002")
	writeArtifact(t, filepath.Join(vendored, "contracts", "Identity.sol"), "Identity", "0x6003")
	require.NoError(t, os.WriteFile(filepath.Join(vendored, "contracts", "Identity.sol", "Identity.dbg.json"), []byte(`{}`), 0o644))
	writeArtifact(t, filepath.Join(vendored, "contracts", "IToken.sol"), "IToken", "0x")

	arts, err := LoadArtifacts(local, vendored, filepath.Join(local, "missing"))
	require.NoError(t, err)

	code, err := arts.Bytecode("Token")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, code)

	code, err = arts.Bytecode("Identity")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x03}, code)

	_, err = arts.Bytecode("IToken")
	assert.ErrorContains(t, err, "no bytecode")

	_, err = arts.Bytecode("TREXFactory")
	assert.ErrorContains(t, err, "not found")
}

func TestArtifactsRejectBrokenBytecode(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, filepath.Join(root, "Lib.sol"), "Linked", "0x6001__$abc$__")
	writeArtifact(t, filepath.Join(root, "Odd.sol"), "Odd", "0x600")

	arts, err := LoadArtifacts(root)
	require.NoError(t, err)

	_, err = arts.Bytecode("Linked")
	assert.ErrorContains(t, err, "unlinked libraries")

	_, err = arts.Bytecode("Odd")
	assert.ErrorContains(t, err, "artifact Odd")
}

func writeArtifact(t *testing.T, dir, name, bytecode string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := fmt.Sprintf(`{"contractName":%q,"sourceName":"contracts/%s.sol","abi":[],"bytecode":%q}`, name, name, bytecode)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}
