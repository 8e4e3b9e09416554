package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "scripts"), filepath.Join(dir, "index.db"), []byte("test-signing-key"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)

	rec, err := st.Save("greet", "demo", "print('hi')", Metadata{Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Metadata.Version)
	assert.NotEmpty(t, rec.Signature)

	got, legacy, err := st.Load("greet")
	require.NoError(t, err)
	assert.False(t, legacy)
	assert.Equal(t, "print('hi')", got.Code)
	assert.Equal(t, "demo", got.FolderPath)
	assert.Equal(t, "alice", got.Metadata.Author)
}

func TestSaveOverwriteBumpsVersionPreservesCreatedAt(t *testing.T) {
	st := newTestStore(t)

	first, err := st.Save("greet", "", "a = 1", Metadata{})
	require.NoError(t, err)

	second, err := st.Save("greet", "", "a = 2", Metadata{})
	require.NoError(t, err)

	assert.Equal(t, 2, second.Metadata.Version)
	assert.Equal(t, first.Metadata.CreatedAt, second.Metadata.CreatedAt)
	assert.Equal(t, "a = 2", second.Code)
}

func TestLoadNotFound(t *testing.T) {
	st := newTestStore(t)
	_, _, err := st.Load("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadLegacyRecordHasNoSignature(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("legacy", "", "print(1)", Metadata{})
	require.NoError(t, err)

	// Simulate a pre-signing record by stripping the signature on disk.
	raw, err := os.ReadFile(st.path("legacy"))
	require.NoError(t, err)
	raw = []byte(replaceSignatureWithEmpty(string(raw)))
	require.NoError(t, os.WriteFile(st.path("legacy"), raw, 0o644))

	rec, legacy, err := st.Load("legacy")
	require.NoError(t, err)
	assert.True(t, legacy)
	assert.True(t, rec.Legacy)
}

func TestLoadTamperedSignatureFails(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("tamper", "", "print(1)", Metadata{})
	require.NoError(t, err)

	raw, err := os.ReadFile(st.path("tamper"))
	require.NoError(t, err)
	tampered := corruptSignature(string(raw))
	require.NoError(t, os.WriteFile(st.path("tamper"), []byte(tampered), 0o644))

	_, _, err = st.Load("tamper")
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("throwaway", "", "pass", Metadata{})
	require.NoError(t, err)

	require.NoError(t, st.Delete("throwaway"))
	require.NoError(t, st.Delete("throwaway"))

	_, _, err = st.Load("throwaway")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSortedByName(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := st.Save(name, "", "pass", Metadata{})
		require.NoError(t, err)
	}

	entries, err := st.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}

func TestFoldersDerivedFromPrefixes(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("a", "reports/weekly", "pass", Metadata{})
	require.NoError(t, err)
	_, err = st.Save("b", "reports/daily", "pass", Metadata{})
	require.NoError(t, err)
	_, err = st.Save("c", "", "pass", Metadata{})
	require.NoError(t, err)

	folders, err := st.Folders()
	require.NoError(t, err)
	assert.Equal(t, []string{"reports", "reports/daily", "reports/weekly"}, folders)
}

func TestRename(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("old", "", "pass", Metadata{})
	require.NoError(t, err)

	require.NoError(t, st.Rename("old", "new"))

	_, _, err = st.Load("old")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, _, err := st.Load("new")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.Name)
}

func TestRenameRejectsExistingTarget(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("a", "", "pass", Metadata{})
	require.NoError(t, err)
	_, err = st.Save("b", "", "pass", Metadata{})
	require.NoError(t, err)

	err = st.Rename("a", "b")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMoveUpdatesFolder(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Save("s", "old/place", "pass", Metadata{})
	require.NoError(t, err)

	require.NoError(t, st.Move("s", "new/place"))

	rec, _, err := st.Load("s")
	require.NoError(t, err)
	assert.Equal(t, "new/place", rec.FolderPath)
}

func TestValidateNameRejectsPathTraversal(t *testing.T) {
	cases := []string{"", "../etc/passwd", "a/b", "a b", "toolong" + string(make([]byte, maxNameLen))}
	for _, name := range cases {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, "name %q should be invalid", name)
	}
	assert.NoError(t, ValidateName("valid_name-1.2"))
}

func TestValidateFolderRejectsDeepOrEmptySegments(t *testing.T) {
	assert.NoError(t, ValidateFolder(""))
	assert.NoError(t, ValidateFolder("a/b/c"))
	assert.ErrorIs(t, ValidateFolder("a//b"), ErrInvalidName)

	var deep []string
	for i := 0; i < maxDepth+1; i++ {
		deep = append(deep, "d")
	}
	assert.ErrorIs(t, ValidateFolder(joinSlash(deep)), ErrInvalidName)
}

func TestDeriveKeyIsDeterministicPerInputs(t *testing.T) {
	k1 := DeriveKey("/opt/pyhostd", "host-a")
	k2 := DeriveKey("/opt/pyhostd", "host-a")
	k3 := DeriveKey("/opt/pyhostd", "host-b")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func joinSlash(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// replaceSignatureWithEmpty blanks out the "signature" field of a marshaled
// SavedScript so Load exercises its legacy-record path.
func replaceSignatureWithEmpty(raw string) string {
	const key = `"signature": "`
	start := indexOf(raw, key)
	if start == -1 {
		return raw
	}
	start += len(key)
	end := indexOf(raw[start:], `"`)
	return raw[:start] + raw[start+end:]
}

// corruptSignature flips the first hex digit of the stored signature,
// keeping the JSON structure intact so Load's signature check (not its
// JSON parsing) is what fails.
func corruptSignature(raw string) string {
	const key = `"signature": "`
	start := indexOf(raw, key)
	if start == -1 {
		return raw
	}
	start += len(key)
	b := []byte(raw)
	if b[start] == 'a' {
		b[start] = 'b'
	} else {
		b[start] = 'a'
	}
	return string(b)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
