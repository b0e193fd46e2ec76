package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"academy-of-heroes/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const battlesYAML = `
battles:
  - id: fractions
    name: Fractions
    bossName: Hydra of Fractions
    bossHp: 6
    rewards:
      xpPerCorrect: 20
      goldPerCorrect: 5
    questions:
      - text: What is 1/2 + 1/4?
        answers: ["2/6", "3/4", "1/8"]
        correctAnswerIndex: 1
        damage: 5
`

func TestReadBattleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(battlesYAML), 0o600))

	battles, err := readBattleFile(path)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, "Hydra of Fractions", battles[0].BossName)
	assert.Equal(t, 1, battles[0].Questions[0].CorrectAnswerIndex)
	require.NoError(t, battles[0].Validate())

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("battles: []\n"), 0o600))
	_, err = readBattleFile(empty)
	assert.Error(t, err)
}

func TestSeedIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(battlesYAML), 0o600))
	t.Setenv("ACADEMY_STORAGE_DRIVER", "sqlite")
	t.Setenv("ACADEMY_STORAGE_SQLITE_PATH", filepath.Join(dir, "academy.db"))

	require.NoError(t, runSeed(context.Background(), filepath.Join(dir, "absent.yaml"), "t1", path))
}

func TestTokenCommand(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	t.Setenv("ACADEMY_AUTH_SECRET", secret)
	cfgPath := filepath.Join(t.TempDir(), "absent.yaml")

	cmd := NewTokenCmd(&cfgPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--teacher", "t1", "--student", "s1"})
	require.NoError(t, cmd.Execute())

	issuer, err := auth.NewIssuer(secret, "academy-of-heroes", time.Hour)
	require.NoError(t, err)
	p, err := issuer.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.True(t, p.CanActAsStudent("t1", "s1"))
}
