package fetcher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	u, rest, err := Render("https://api.example.com/entry/{id}/history/", map[string]string{"id": "42", "page": "1"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/entry/42/history/", u)
	assert.Equal(t, map[string]string{"page": "1"}, rest)

	u, _, err = Render("https://api.example.com/search/{q}", map[string]string{"q": "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/search/a%20b%2Fc", u)

	_, _, err = Render("/relative/{id}", map[string]string{"id": "1"})
	assert.Error(t, err)
}

func TestExpandParams(t *testing.T) {
	combos := ExpandParams(map[string]any{"b": []any{1, 2}, "a": []any{"x", "y"}, "c": true})
	require.Len(t, combos, 4)
	assert.Equal(t, map[string]string{"a": "x", "b": "1", "c": "true"}, combos[0])
	assert.Equal(t, map[string]string{"a": "y", "b": "2", "c": "true"}, combos[3])

	assert.Equal(t, []map[string]string{{}}, ExpandParams(nil))
	assert.Empty(t, ExpandParams(map[string]any{"a": []any{}})[0])
}

func TestFingerprintIgnoresParamOrder(t *testing.T) {
	a := Fingerprint(http.MethodGet, "https://x/y?b=2&a=1", map[string]string{"c": "3"})
	b := Fingerprint("get", "https://x/y", map[string]string{"a": "1", "b": "2", "c": "3"})
	c := Fingerprint(http.MethodGet, "https://x/y?c=3", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint(http.MethodPost, "https://x/y", map[string]string{"a": "1", "b": "2", "c": "3"}))
	assert.NotEqual(t, a, Fingerprint(http.MethodGet, "https://x/y", map[string]string{"a": "1", "b": "2", "c": "4"}))
}

func TestEndpointValidate(t *testing.T) {
	cases := []struct {
		name string
		ep   Endpoint
	}{
		{"missing url", Endpoint{}},
		{"bad method", Endpoint{URL: "http://x", Method: "TRACE"}},
		{"bearer without token", Endpoint{URL: "http://x", Auth: &Auth{Type: AuthBearer}}},
		{"unknown auth", Endpoint{URL: "http://x", Auth: &Auth{Type: "digest"}}},
		{"pagination without param", Endpoint{URL: "http://x", Pagination: Pagination{Enabled: true}}},
		{"next_absent without path", Endpoint{URL: "http://x", Pagination: Pagination{Enabled: true, PageParam: "p", StopCondition: StopOnNextAbsent}}},
		{"unknown stop", Endpoint{URL: "http://x", Pagination: Pagination{Enabled: true, PageParam: "p", StopCondition: "never"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.ep.Validate())
		})
	}
	assert.NoError(t, (&Endpoint{URL: "http://x/{id}", Pagination: Pagination{Enabled: true, PageParam: "p"}}).Validate())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter("-3", now))
}

func TestInspectPage(t *testing.T) {
	empty := &Pagination{ItemsPath: "data.items"}
	keep, more := inspectPage(empty, []byte(`{"data":{"items":[1]}}`))
	assert.True(t, keep)
	assert.True(t, more)
	keep, more = inspectPage(empty, []byte(`{"data":{"items":[]}}`))
	assert.False(t, keep)
	assert.False(t, more)

	whole := &Pagination{}
	keep, more = inspectPage(whole, []byte(`[]`))
	assert.False(t, keep)
	assert.False(t, more)
	keep, more = inspectPage(whole, []byte("a,b\n1,2\n"))
	assert.True(t, keep)
	assert.True(t, more)

	next := &Pagination{StopCondition: StopOnNextAbsent, NextPath: "next"}
	keep, more = inspectPage(next, []byte(`{"next":null,"items":[1]}`))
	assert.True(t, keep)
	assert.False(t, more)
}
