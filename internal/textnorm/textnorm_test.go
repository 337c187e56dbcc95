package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "accuse de reception", Fold("Accusé de Réception"))
	assert.Equal(t, "societe generale", Fold("Société Générale"))
	assert.Equal(t, "", Fold(""))
}

func TestAlphaNum(t *testing.T) {
	assert.Equal(t, "techcorp", AlphaNum("Tech-Corp"))
	assert.Equal(t, "bnpparibas2", AlphaNum("BNP Paribas 2"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Techcorp", Title("techcorp"))
	assert.Equal(t, "Développeur Python", Title("DÉVELOPPEUR python"))
}

func TestKeywords(t *testing.T) {
	got := Keywords("Développeur Python pour la Data et le Cloud, python", 3)
	assert.Equal(t, []string{"developpeur", "python", "data", "cloud"}, got)
	assert.Empty(t, Keywords("un de la", 3))
}

func TestRoundAndClamp(t *testing.T) {
	assert.Equal(t, 0.8, Round2(0.3+0.4+0.1))
	assert.Equal(t, 0.7, Round2(0.4+0.3))
	assert.Equal(t, 1.0, Clamp01(1.3))
	assert.Equal(t, 0.0, Clamp01(-0.2))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "dév", Truncate("développeur", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
}
