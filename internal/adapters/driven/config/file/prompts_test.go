package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

func TestPromptStore_ImplementsInterface(t *testing.T) {
	var _ driven.PromptStore = (*PromptStore)(nil)
}

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".townhall", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(domain.PromptTitle)
	require.NoError(t, err)

	for _, f := range []string{"chat_rules.txt", "title.txt", "vision.txt", "README.md"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "expected file %s to exist", f)
	}
}

func TestPromptStore_Load_ReturnsDefaultContent(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	prompt, err := store.Load(domain.PromptChatRules)

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrompts()[domain.PromptChatRules], prompt)
	assert.Contains(t, prompt, domain.PlaceholderMarker)
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()
	customContent := "Odpovídej jako {{assistant}}."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_rules.txt"), []byte(customContent), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(domain.PromptChatRules)

	require.NoError(t, err)
	assert.Equal(t, customContent, prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, _ = store.Load(domain.PromptVision)
	require.NoError(t, os.Remove(filepath.Join(dir, "vision.txt")))
	store.Reload()

	prompt, err := store.Load(domain.PromptVision)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrompts()[domain.PromptVision], prompt)

	// An emptied file also falls back.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vision.txt"), []byte("  \n"), 0600))
	store.Reload()
	prompt, err = store.Load(domain.PromptVision)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrompts()[domain.PromptVision], prompt)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nonexistent_prompt")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "nonexistent_prompt")
}

func TestPromptStore_Load_CachesResults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt1, err := store.Load(domain.PromptTitle)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte("modified content"), 0600))

	prompt2, err := store.Load(domain.PromptTitle)
	require.NoError(t, err)
	assert.Equal(t, prompt1, prompt2)

	store.Reload()
	prompt3, err := store.Load(domain.PromptTitle)
	require.NoError(t, err)
	assert.Equal(t, "modified content", prompt3)
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	const goroutines = 50
	var wg sync.WaitGroup
	prompts := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prompt, err := store.Load(domain.PromptChatRules)
			assert.NoError(t, err)
			prompts <- prompt
		}()
	}
	wg.Wait()
	close(prompts)

	for prompt := range prompts {
		assert.Equal(t, domain.DefaultPrompts()[domain.PromptChatRules], prompt)
	}
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	customContent := "pre-existing custom prompt"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte(customContent), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, _ = store.Load(domain.PromptVision)

	data, err := os.ReadFile(filepath.Join(dir, "title.txt"))
	require.NoError(t, err)
	assert.Equal(t, customContent, string(data))
}

func TestPromptStore_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte("\n\n  prompt content  \n\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(domain.PromptTitle)
	require.NoError(t, err)
	assert.Equal(t, "prompt content", prompt)
}

func TestPromptStore_InitFailureUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	// A path below a regular file cannot be created.
	store, err := NewPromptStore(filepath.Join(blocker, "prompts"))
	require.NoError(t, err)

	prompt, err := store.Load(domain.PromptTitle)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrompts()[domain.PromptTitle], prompt)
}
