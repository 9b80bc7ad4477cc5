package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractData_WithSpace(t *testing.T) {
	data, ok := ExtractData(`data: {"type":"message"}`)
	require.True(t, ok)
	require.Equal(t, `{"type":"message"}`, data)
}

func TestExtractData_NoSpace(t *testing.T) {
	data, ok := ExtractData(`data:{"type":"message"}`)
	require.True(t, ok)
	require.Equal(t, `{"type":"message"}`, data)
}

func TestExtractData_SkipsDoneMarker(t *testing.T) {
	_, ok := ExtractData("data: [DONE]")
	require.False(t, ok)
}

func TestExtractData_SkipsEmptyData(t *testing.T) {
	_, ok := ExtractData("data: ")
	require.False(t, ok)
	_, ok = ExtractData("data:")
	require.False(t, ok)
}

func TestExtractData_SkipsEmptyLine(t *testing.T) {
	_, ok := ExtractData("")
	require.False(t, ok)
	_, ok = ExtractData("   ")
	require.False(t, ok)
}

func TestExtractData_SkipsComment(t *testing.T) {
	_, ok := ExtractData(": this is a comment")
	require.False(t, ok)
}

func TestExtractData_StripsCarriageReturn(t *testing.T) {
	data, ok := ExtractData("data: hello\r")
	require.True(t, ok)
	require.Equal(t, "hello", data)
}

func TestExtractData_SkipsInvalidUTF8(t *testing.T) {
	_, ok := ExtractData("data: \xff\xfe")
	require.False(t, ok)
}

func TestParser_ReadAllAcrossLines(t *testing.T) {
	r := strings.NewReader("data: one\n\n:comment\ndata: two\ndata: [DONE]\n")
	out, err := ReadAll(r, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, out)
}

func TestParser_NoTrailingNewlineWithProcessRemainingFalse(t *testing.T) {
	r := strings.NewReader("data: dangling")
	p := NewParser(r, Options{ProcessRemainingBuffer: false})
	_, err := p.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestParser_NoTrailingNewlineWithProcessRemainingTrue(t *testing.T) {
	r := strings.NewReader("data: dangling")
	p := NewParser(r, Options{ProcessRemainingBuffer: true})
	data, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, "dangling", data)

	_, err = p.Next()
	require.ErrorIs(t, err, io.EOF)
}
