package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/transaction"
)

type harness struct {
	t    *testing.T
	args []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, args: []string{
		"--env-file", filepath.Join(dir, "missing.env"),
		"--driver", "sqlite",
		"--dsn", filepath.Join(dir, "credits.db"),
	}}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd("test")
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(append([]string{}, args...), h.args...))
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func (h *harness) must(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "creditsctl %s", strings.Join(args, " "))
	return out
}

func TestCommands(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.must("migrate"), "Platform account: acct_")

	acct := h.must("open-account", "--org", "org_1")
	require.True(t, strings.HasPrefix(acct, "acct_"), acct)

	sub := h.must("subscribe", "--org", "org_1", "--renewal-day", "15")
	assert.True(t, strings.HasPrefix(sub, "sub_"), sub)

	assert.Contains(t, h.must("fill", "--org", "org_1", "--account", acct, "--amount", "100"), "Filled 100")
	assert.Contains(t, h.must("withdraw", "--org", "org_1", "--account", acct, "--amount", "30"), "Withdrew 30")

	_, err := h.run("withdraw", "--org", "org_1", "--account", acct, "--amount", "500")
	assert.ErrorContains(t, err, "insufficient")

	balance := h.must("balance", "--org", "org_1")
	assert.Contains(t, balance, acct)
	lines := strings.Split(balance, "\n")
	assert.Equal(t, []string{"total", "70", "0", "0"}, strings.Fields(lines[len(lines)-1]))

	var page transaction.Page
	require.NoError(t, json.Unmarshal([]byte(h.must("transactions", "--org", "org_1", "--json")), &page))
	assert.Zero(t, page.Total)

	_, err = h.run("transactions", "--org", "org_1", "--sort", "bogus")
	assert.Error(t, err)
}

func TestEnvironmentFallback(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "creditsctl.env")
	dsn := filepath.Join(dir, "from-env.db")
	require.NoError(t, os.WriteFile(envFile, []byte("CREDITS_DRIVER=sqlite\nCREDITS_DSN="+dsn+"\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv(envDriver)
		_ = os.Unsetenv(envDSN)
	})

	root := NewRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "--env-file", envFile})
	require.NoError(t, root.Execute())

	_, err := os.Stat(dsn)
	assert.NoError(t, err)
}

func TestOpenAccountRequiresOrg(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("open-account")
	assert.ErrorContains(t, err, `required flag(s) "org" not set`)
}
