package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitThemeSwitchesPalette(t *testing.T) {
	InitTheme("light")
	assert.Equal(t, ThemeLight, GetCurrentTheme())
	assert.Equal(t, lightColors.Bg, ColorBg)

	InitTheme("dark")
	assert.Equal(t, ThemeDark, GetCurrentTheme())
	assert.Equal(t, darkColors.Bg, ColorBg)

	// Unknown themes fall back to dark
	InitTheme("solarized")
	assert.Equal(t, ThemeDark, GetCurrentTheme())
}

func TestDirtyIndicator(t *testing.T) {
	assert.Contains(t, DirtyIndicator(true), "●", "dirty conversations get the filled marker")
	assert.Contains(t, DirtyIndicator(false), "○", "clean conversations get the hollow marker")
}

func TestMenuKey(t *testing.T) {
	item := MenuKey("s", "sync")
	assert.Contains(t, item, "s")
	assert.Contains(t, item, "sync")
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "short", truncateLine("short", 20))
	got := truncateLine("a very long conversation title", 10)
	assert.True(t, len(got) < len("a very long conversation title"))
	assert.Contains(t, got, "…")
}
