package blockedit

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const composeBase = `# dev stack
name: devstack

services:
  frontend:
    image: node:22
    ports:
      - "3000:3000"

  db:
    image: postgres:16
    volumes:
      - db_data:/var/lib/postgresql/data

  db_admin:
    image: adminer
    labels:
      db: "true"

volumes:
  db_data:
`

const pgadminBlock = `pgadmin:
  image: dpage/pgadmin4
  environment:
    PGADMIN_DEFAULT_EMAIL: admin@example.com
  volumes:
    - pgadmin_data:/var/lib/pgadmin
`

func mustParse(t *testing.T, s string, opts ...ParseOption) *Document {
	t.Helper()
	doc, err := Parse([]byte(s), opts...)
	require.NoError(t, err)
	return doc
}

func mustBlock(t *testing.T, name, s string) *Block {
	t.Helper()
	b, err := ParseBlock(name, []byte(s))
	require.NoError(t, err)
	return b
}

func requireSameText(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	t.Fatalf("documents differ:\n%s", diff)
}

func upsert(t *testing.T, doc *Document, b *Block, anchor string) {
	t.Helper()
	_, err := doc.Remove(b.Name())
	require.NoError(t, err)
	require.NoError(t, doc.Insert(b, ResolveAnchor(doc.Root(), anchor)))
}

func TestParseRoundTripIsByteIdentical(t *testing.T) {
	for _, in := range []string{
		"",
		"\n",
		composeBase,
		"services:\n  a:\n    image: x", // no final newline
		"services:\r\n  a:\r\n    image: x\r\n",
	} {
		doc := mustParse(t, in)
		assert.Equal(t, in, string(doc.Bytes()))
	}
}

func TestParseRejectsBadOptions(t *testing.T) {
	_, err := Parse([]byte("a: 1\n"), WithRootKey(""))
	require.Error(t, err)
	_, err = Parse([]byte("a: 1\n"), WithRootKey("bad key"))
	require.Error(t, err)
	_, err = Parse([]byte("a: 1\n"), WithBlockIndent(-1))
	require.Error(t, err)
}

func TestLocateFindsExactHeader(t *testing.T) {
	doc := mustParse(t, composeBase)

	r, found, err := doc.Locate("db")
	require.NoError(t, err)
	require.True(t, found)

	lines := doc.Lines()
	assert.Equal(t, "  db:", lines[r.Start])
	// The block owns its trailing blank line and stops before db_admin.
	assert.Equal(t, "", lines[r.End-1])
	assert.Equal(t, "  db_admin:", lines[r.End])
}

func TestLocateIgnoresNestedKeysWithSameName(t *testing.T) {
	doc := mustParse(t, composeBase)

	// "db" also appears as a label key inside db_admin, deeper than a header.
	r, found, err := doc.Locate("db")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "  db:", doc.Lines()[r.Start])

	_, found, err = doc.Locate("labels")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateDoesNotLookOutsideRootSection(t *testing.T) {
	doc := mustParse(t, composeBase)
	// db_data is declared under volumes, not services.
	_, found, err := doc.Locate("db_data")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateAcceptsTrailingComment(t *testing.T) {
	doc := mustParse(t, "services:\n  web:   # main app\n    image: x\n")
	r, found, err := doc.Locate("web")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Range{Start: 1, End: 3}, r)
}

func TestLocateMissingRootSectionIsNotFound(t *testing.T) {
	doc := mustParse(t, "volumes:\n  data:\n")
	_, found, err := doc.Locate("db")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateDuplicateHeaderIsAmbiguous(t *testing.T) {
	doc := mustParse(t, "services:\n  db:\n    image: a\n  db:\n    image: b\n")
	_, _, err := doc.Locate("db")
	require.ErrorIs(t, err, ErrAmbiguousMatch)
}

func TestLocateInconsistentIndentIsAmbiguous(t *testing.T) {
	in := "services:\n    db:\n        image: a\n"
	doc := mustParse(t, in, WithBlockIndent(2))
	_, _, err := doc.Locate("db")
	require.ErrorIs(t, err, ErrAmbiguousMatch)

	// Detected indentation follows the file.
	doc = mustParse(t, in)
	r, found, err := doc.Locate("db")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Range{Start: 1, End: 3}, r)
}

func TestLocateConfiguredIndentMustMatchChildren(t *testing.T) {
	// web carries a nested traefik label map at the configured indent.
	in := "services:\n  web:\n    image: x\n    traefik:\n      enable: true\nvolumes:\n"
	doc := mustParse(t, in, WithBlockIndent(4))

	_, _, err := doc.Locate("traefik")
	require.ErrorIs(t, err, ErrAmbiguousMatch)

	removed, err := doc.Remove("traefik")
	require.ErrorIs(t, err, ErrAmbiguousMatch)
	assert.False(t, removed)

	err = doc.Insert(mustBlock(t, "cache", "cache:\n  image: redis\n"), Before("volumes"))
	require.ErrorIs(t, err, ErrAmbiguousMatch)
	assert.Equal(t, in, string(doc.Bytes()))

	// An empty section has nothing to disagree with.
	doc = mustParse(t, "services:\nvolumes:\n", WithBlockIndent(4))
	require.NoError(t, doc.Insert(mustBlock(t, "cache", "cache:\n  image: redis\n"), FirstUnder("services")))
	assert.Equal(t, "services:\n    cache:\n      image: redis\n\nvolumes:\n", string(doc.Bytes()))
}

func TestRemoveIsolatesPrefixNames(t *testing.T) {
	doc := mustParse(t, composeBase)

	removed, err := doc.Remove("db")
	require.NoError(t, err)
	require.True(t, removed)

	want := strings.Replace(composeBase, `  db:
    image: postgres:16
    volumes:
      - db_data:/var/lib/postgresql/data

`, "", 1)
	requireSameText(t, want, string(doc.Bytes()))

	_, found, err := doc.Locate("db_admin")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	doc := mustParse(t, composeBase)
	removed, err := doc.Remove("traefik")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, composeBase, string(doc.Bytes()))
}

func TestRemoveLastBlockBeforeAnchor(t *testing.T) {
	doc := mustParse(t, composeBase)
	_, err := doc.Remove("db_admin")
	require.NoError(t, err)

	got := string(doc.Bytes())
	assert.Contains(t, got, "      - db_data:/var/lib/postgresql/data\n\nvolumes:\n")
	assert.NotContains(t, got, "adminer")
}

func TestInsertBeforeAnchor(t *testing.T) {
	doc := mustParse(t, composeBase)
	require.NoError(t, doc.Insert(mustBlock(t, "pgadmin", pgadminBlock), Before("volumes")))

	want := strings.Replace(composeBase, "volumes:\n  db_data:\n", `  pgadmin:
    image: dpage/pgadmin4
    environment:
      PGADMIN_DEFAULT_EMAIL: admin@example.com
    volumes:
      - pgadmin_data:/var/lib/pgadmin

volumes:
  db_data:
`, 1)
	requireSameText(t, want, string(doc.Bytes()))
}

func TestInsertFirstUnderRoot(t *testing.T) {
	in := "services:\n  db:\n    image: postgres\nvolumes:\n"
	doc := mustParse(t, in)
	require.NoError(t, doc.Insert(mustBlock(t, "traefik", "traefik:\n  image: foo\n"), FirstUnder("services")))

	want := "services:\n  traefik:\n    image: foo\n\n  db:\n    image: postgres\nvolumes:\n"
	requireSameText(t, want, string(doc.Bytes()))

	// volumes stays empty.
	lines := doc.Lines()
	assert.Equal(t, "volumes:", lines[len(lines)-1])
}

func TestInsertFirstUnderRootAtEndOfDocument(t *testing.T) {
	doc := mustParse(t, "name: x\nservices:\n")
	b := mustBlock(t, "traefik", "traefik:\n  image: foo\n")
	require.NoError(t, doc.Insert(b, FirstUnder("services")))

	want := "name: x\nservices:\n  traefik:\n    image: foo\n"
	requireSameText(t, want, string(doc.Bytes()))

	upsert(t, doc, b, "services")
	requireSameText(t, want, string(doc.Bytes()))

	_, err := doc.Remove("traefik")
	require.NoError(t, err)
	assert.Equal(t, "name: x\nservices:\n", string(doc.Bytes()))
}

func TestInsertKeepsCRLF(t *testing.T) {
	in := "services:\r\n  web:\r\n    image: x\r\nvolumes:\r\n"
	doc := mustParse(t, in)
	b := mustBlock(t, "pgadmin", "pgadmin:\n  image: y\n\n  ports:\n    - 80\n")

	require.NoError(t, doc.Insert(b, Before("volumes")))
	_, err := doc.EnsureScalar("volumes", "pgadmin_data:")
	require.NoError(t, err)

	want := "services:\r\n  web:\r\n    image: x\r\n  pgadmin:\r\n    image: y\r\n\r\n    ports:\r\n      - 80\r\n\r\nvolumes:\r\n  pgadmin_data:\r\n"
	requireSameText(t, want, string(doc.Bytes()))

	// Still byte-stable on repeat and fully reversible.
	upsert(t, doc, b, "volumes")
	added, err := doc.EnsureScalar("volumes", "pgadmin_data:")
	require.NoError(t, err)
	assert.False(t, added)
	requireSameText(t, want, string(doc.Bytes()))

	_, err = doc.Remove("pgadmin")
	require.NoError(t, err)
	assert.Equal(t, "services:\r\n  web:\r\n    image: x\r\nvolumes:\r\n  pgadmin_data:\r\n", string(doc.Bytes()))
}

func TestInsertKeepsAnchorComments(t *testing.T) {
	in := "services:\n  db:\n    image: postgres\n\n# named volumes\nvolumes:\n  db_data:\n"
	doc := mustParse(t, in)
	require.NoError(t, doc.Insert(mustBlock(t, "cache", "cache:\n  image: redis\n"), Before("volumes")))

	want := "services:\n  db:\n    image: postgres\n\n  cache:\n    image: redis\n\n# named volumes\nvolumes:\n  db_data:\n"
	requireSameText(t, want, string(doc.Bytes()))
}

func TestInsertUsesFourSpaceIndent(t *testing.T) {
	in := "services:\n    db:\n        image: postgres\n\nvolumes:\n    db_data:\n"
	doc := mustParse(t, in)
	require.NoError(t, doc.Insert(mustBlock(t, "cache", "cache:\n  image: redis\n  ports:\n    - 6379\n"), Before("volumes")))

	want := "services:\n    db:\n        image: postgres\n\n    cache:\n      image: redis\n      ports:\n        - 6379\n\nvolumes:\n    db_data:\n"
	requireSameText(t, want, string(doc.Bytes()))
}

func TestInsertRejectsBadAnchors(t *testing.T) {
	b := mustBlock(t, "pgadmin", pgadminBlock)

	doc := mustParse(t, "services:\n  db:\n    image: x\n")
	require.ErrorIs(t, doc.Insert(b, Before("volumes")), ErrMalformedAnchor)

	doc = mustParse(t, "volumes:\n  data:\n")
	require.ErrorIs(t, doc.Insert(b, FirstUnder("services")), ErrMalformedAnchor)

	// networks sits between services and volumes.
	doc = mustParse(t, "services:\n  db:\n    image: x\nnetworks:\n  n:\nvolumes:\n  v:\n")
	require.ErrorIs(t, doc.Insert(b, Before("volumes")), ErrMalformedAnchor)

	doc = mustParse(t, composeBase)
	require.ErrorIs(t, doc.Insert(b, FirstUnder("volumes")), ErrMalformedAnchor)
	require.ErrorIs(t, doc.Insert(b, Before("services")), ErrMalformedAnchor)
	assert.Equal(t, composeBase, string(doc.Bytes()))
}

func TestInsertExistingBlockFails(t *testing.T) {
	doc := mustParse(t, composeBase)
	err := doc.Insert(mustBlock(t, "db", "db:\n  image: x\n"), Before("volumes"))
	require.ErrorIs(t, err, ErrAmbiguousMatch)
}

func TestUpsertIsIdempotent(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		block  string
		anchor string
	}{
		{"before volumes", composeBase, pgadminBlock, "volumes"},
		{"first under services", composeBase, "traefik:\n  image: traefik:v3\n", "services"},
		{"blank after root", "services:\n\n  db:\n    image: x\n\nvolumes:\n", "traefik:\n  image: t\n", "services"},
		{"no blank before anchor", "services:\n  db:\n    image: x\nvolumes:\n", "cache:\n  image: redis\n", "volumes"},
		{"empty section", "services:\nvolumes:\n", "traefik:\n  image: t\n", "services"},
		{"no final newline", "services:\n  db:\n    image: x\nvolumes:\n  v:", "cache:\n  image: r\n", "volumes"},
		{"replace existing", composeBase, "db:\n  image: postgres:17\n", "volumes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := mustBlock(t, strings.TrimSuffix(strings.SplitN(tc.block, "\n", 2)[0], ":"), tc.block)

			once := mustParse(t, tc.in)
			upsert(t, once, b, tc.anchor)

			twice := mustParse(t, string(once.Bytes()))
			upsert(t, twice, b, tc.anchor)

			requireSameText(t, string(once.Bytes()), string(twice.Bytes()))

			r, found, err := twice.Locate(b.Name())
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, len(b.Lines())+1, r.Len())
		})
	}
}

func TestRemoveThenUpsertRoundTrip(t *testing.T) {
	b := mustBlock(t, "pgadmin", pgadminBlock)

	doc := mustParse(t, composeBase)
	upsert(t, doc, b, "volumes")

	_, err := doc.Remove("pgadmin")
	require.NoError(t, err)
	requireSameText(t, composeBase, string(doc.Bytes()))

	upsert(t, doc, b, "volumes")
	r, found, err := doc.Locate("pgadmin")
	require.NoError(t, err)
	require.True(t, found)

	got := doc.Lines()[r.Start : r.End-1]
	if diff := cmp.Diff(b.indented(2), got); diff != "" {
		t.Fatalf("block mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureScalarAddsOnce(t *testing.T) {
	doc := mustParse(t, composeBase)

	added, err := doc.EnsureScalar("volumes", "  pgadmin_data:")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = doc.EnsureScalar("volumes", "  pgadmin_data:")
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, strings.Count(string(doc.Bytes()), "pgadmin_data:"))
	assert.True(t, strings.HasSuffix(string(doc.Bytes()), "volumes:\n  pgadmin_data:\n  db_data:\n"))
}

func TestEnsureScalarIndentsBareEntry(t *testing.T) {
	doc := mustParse(t, "services:\n    db:\n        image: x\nvolumes:\n    db_data:\n")
	added, err := doc.EnsureScalar("volumes", "pgadmin_data:")
	require.NoError(t, err)
	require.True(t, added)
	assert.Contains(t, string(doc.Bytes()), "volumes:\n    pgadmin_data:\n    db_data:\n")
}

func TestEnsureScalarIntoEmptyRoot(t *testing.T) {
	doc := mustParse(t, "services:\n  db:\n    image: x\nvolumes:\n")
	added, err := doc.EnsureScalar("volumes", "pgadmin_data:")
	require.NoError(t, err)
	require.True(t, added)
	assert.Equal(t, "services:\n  db:\n    image: x\nvolumes:\n  pgadmin_data:\n", string(doc.Bytes()))
}

func TestEnsureScalarTreatsSameKeyAsPresent(t *testing.T) {
	in := "volumes:\n  pgadmin_data: {}\n"
	doc := mustParse(t, in)
	added, err := doc.EnsureScalar("volumes", "pgadmin_data:")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, in, string(doc.Bytes()))
}

func TestEnsureScalarErrors(t *testing.T) {
	doc := mustParse(t, "services:\n  db:\n    image: x\n")
	_, err := doc.EnsureScalar("volumes", "data:")
	require.ErrorIs(t, err, ErrMalformedAnchor)

	_, err = doc.EnsureScalar("services", "   ")
	require.ErrorIs(t, err, ErrInvalidBlock)
}

func TestParseBlock(t *testing.T) {
	t.Run("dedents and trims", func(t *testing.T) {
		b := mustBlock(t, "traefik", "\n\n  traefik:\n    image: traefik:v3\n\n    ports:\n      - 80:80   \n\n")
		assert.Equal(t, []string{"traefik:", "  image: traefik:v3", "", "  ports:", "    - 80:80"}, b.Lines())
		assert.Equal(t, "traefik:\n  image: traefik:v3\n\n  ports:\n    - 80:80\n", b.String())
	})

	t.Run("crlf", func(t *testing.T) {
		b := mustBlock(t, "a", "a:\r\n  image: x\r\n")
		assert.Equal(t, []string{"a:", "  image: x"}, b.Lines())
	})

	bad := map[string]struct{ name, text string }{
		"empty":           {"a", "\n\n"},
		"wrong header":    {"a", "b:\n  image: x\n"},
		"prefix header":   {"db", "db_admin:\n  image: x\n"},
		"sibling key":     {"a", "a:\n  image: x\nb:\n  image: y\n"},
		"header comment":  {"a", "a:\n  image: x\n# trailing\n"},
		"outdented line":  {"a", "  a:\n    image: x\n y: 1\n"},
		"scalar header":   {"a", "a: 1\n"},
		"invalid yaml":    {"a", "a:\n  image: [x\n"},
		"reserved name":   {"a:b", "a:b:\n  image: x\n"},
		"empty name":      {"", "a:\n  image: x\n"},
	}
	for name, tc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBlock(tc.name, []byte(tc.text))
			require.ErrorIs(t, err, ErrInvalidBlock)
		})
	}
}

func TestHeaderKey(t *testing.T) {
	cases := []struct {
		line   string
		key    string
		indent int
		ok     bool
	}{
		{"services:", "services", 0, true},
		{"  db:  ", "db", 2, true},
		{"  db: # comment", "db", 2, true},
		{"  db: postgres", "", 0, false},
		{"  - db:", "", 0, false},
		{"  # db:", "", 0, false},
		{"  image: nginx:1.27", "", 0, false},
		{"  http://x", "", 0, false},
		{"", "", 0, false},
	}
	for _, tc := range cases {
		key, indent, ok := headerKey(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		if tc.ok {
			assert.Equal(t, tc.key, key, tc.line)
			assert.Equal(t, tc.indent, indent, tc.line)
		}
	}
}

func TestDetectIndent(t *testing.T) {
	assert.Equal(t, 2, detectIndent(strings.Split(composeBase, "\n")))
	assert.Equal(t, 4, detectIndent([]string{"a:", "    b:", "        c: 1"}))
	assert.Equal(t, 3, detectIndent([]string{"a:", "   b: 1", "   # x"}))
	assert.Equal(t, 2, detectIndent([]string{"a: 1"}))
}

func TestCloneIsIndependent(t *testing.T) {
	doc := mustParse(t, composeBase)
	cp := doc.Clone()
	_, err := cp.Remove("db")
	require.NoError(t, err)
	assert.Equal(t, composeBase, string(doc.Bytes()))
	assert.NotEqual(t, composeBase, string(cp.Bytes()))
}
