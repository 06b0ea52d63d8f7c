package uploads

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"report (final).xlsx", "report_final.xlsx"},
		{"  spaced\tout  .doc", "spaced_out_.doc"},
		{"__init__.py", "init__.py"},
		{"日本語", ""},
		{"...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.in))
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "xlsx", Extension("Report.XLSX"))
	assert.Equal(t, "", Extension("README"))
	assert.Equal(t, "Name.DOC.doc", lowercaseExt("Name.DOC.DOC"))
}

func newDocumentSet(t *testing.T) *Set {
	t.Helper()

	set := NewSet("documents", Documents)
	require.NoError(t, set.Configure(filepath.Join(t.TempDir(), "docs"), ""))
	return set
}

func TestSet_Configure(t *testing.T) {
	tests := []struct {
		name        string
		dest        string
		defaultDest string
		want        string
		wantErr     bool
	}{
		{name: "explicit destination", dest: "/srv/docs", defaultDest: "/srv/uploads", want: "/srv/docs"},
		{name: "default parent", defaultDest: "/srv/uploads", want: "/srv/uploads/documents"},
		{name: "no destination", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewSet("documents", Documents)
			err := set.Configure(tt.dest, tt.defaultDest)
			if tt.wantErr {
				assert.EqualError(t, err, "no destination for upload set documents")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Destination())
		})
	}
}

func TestSet_Allowed(t *testing.T) {
	set := NewSet("documents", Documents)

	for _, name := range []string{"a.rtf", "a.odf", "a.ods", "a.gnumeric", "a.abw", "a.doc", "a.docx", "a.xls", "A.XLSX"} {
		assert.True(t, set.FileAllowed(name), name)
	}
	for _, name := range []string{"a.exe", "a.pdf", "xlsx", "a.xlsx.sh"} {
		assert.False(t, set.FileAllowed(name), name)
	}
	assert.Equal(t, ".rtf,.odf,.ods,.gnumeric,.abw,.doc,.docx,.xls,.xlsx", set.Accept())
}

func TestSet_Save(t *testing.T) {
	set := newDocumentSet(t)

	saved, err := set.Save(strings.NewReader("hello"), "Quarterly Report.XLSX")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly_Report.xlsx", saved.Name)
	assert.EqualValues(t, 5, saved.Size)

	sum := blake2b.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(sum[:]), saved.Checksum)

	data, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "/_uploads/documents/Quarterly_Report.xlsx", set.URL(saved.Name))
}

func TestSet_Save_ResolvesConflicts(t *testing.T) {
	set := newDocumentSet(t)

	var names []string
	for i := 0; i < 3; i++ {
		saved, err := set.Save(strings.NewReader("x"), "notes.doc")
		require.NoError(t, err)
		names = append(names, saved.Name)
	}
	assert.Equal(t, []string{"notes.doc", "notes_1.doc", "notes_2.doc"}, names)
}

func TestSet_Save_Rejects(t *testing.T) {
	set := newDocumentSet(t)

	for _, name := range []string{"virus.exe", "", "日本.doc", "../"} {
		_, err := set.Save(strings.NewReader("x"), name)
		assert.ErrorIs(t, err, ErrNotAllowed, name)
	}

	entries, err := os.ReadDir(set.Destination())
	if err == nil {
		assert.Empty(t, entries, "rejected files are never written")
	}

	_, err = NewSet("documents", Documents).Save(strings.NewReader("x"), "a.doc")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSheetNames(t *testing.T) {
	dir := t.TempDir()

	book := excelize.NewFile()
	_, err := book.NewSheet("Data")
	require.NoError(t, err)
	path := filepath.Join(dir, "book.xlsx")
	require.NoError(t, book.SaveAs(path))
	require.NoError(t, book.Close())

	sheets, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1", "Data"}, sheets)

	sheets, err = SheetNames(filepath.Join(dir, "notes.doc"))
	require.NoError(t, err)
	assert.Nil(t, sheets)

	broken := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o644))
	_, err = SheetNames(broken)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	root := t.TempDir()

	_, err := Configure(Destinations{}, NewSet("documents", Documents))
	assert.Error(t, err)

	_, err = Configure(Destinations{Default: root}, NewSet("a", nil), NewSet("a", nil))
	assert.Error(t, err)

	reg, err := Configure(Destinations{Default: root}, NewSet("documents", Documents))
	require.NoError(t, err)
	assert.Equal(t, []string{"documents"}, reg.Names())
	assert.Equal(t, "/_uploads/documents/a%20b.doc", reg.URL("documents", "a b.doc"))
	assert.Empty(t, reg.URL("images", "a.png"))

	set, ok := reg.Set("documents")
	require.True(t, ok)
	saved, err := set.Save(strings.NewReader("content"), "memo.doc")
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount(URLPrefix, reg.Routes())

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/_uploads/documents/" + saved.Name, http.StatusOK},
		{"/_uploads/documents/missing.doc", http.StatusNotFound},
		{"/_uploads/images/" + saved.Name, http.StatusNotFound},
		{"/_uploads/documents/..%2Fsecret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "content", rec.Body.String())
			}
		})
	}
}
