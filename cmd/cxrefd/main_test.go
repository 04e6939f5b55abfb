package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxrefd/cxrefd/internal/query"
)

func TestParseRequestBareFlagIsBooleanNotValueConsuming(t *testing.T) {
	req := parseRequest("lookup --regexp foo")
	require.Equal(t, "lookup", req.Command)
	require.Equal(t, []string{"foo"}, req.Free)
	require.Contains(t, req.Args, "regexp")
	require.Equal(t, "", req.Args["regexp"])
}

func TestParseRequestKeyEqualsValueIsHonored(t *testing.T) {
	req := parseRequest("lookup --types=Class,Struct foo")
	require.Equal(t, query.Request{
		Command: "lookup",
		Args:    map[string]string{"types": "Class,Struct"},
		Free:    []string{"foo"},
	}, req)
}

func TestParseRequestBareFlagLeavesPatternInFree(t *testing.T) {
	req := parseRequest("remove --regexp .*\\.h$")
	require.Equal(t, []string{`.*\.h$`}, req.Free)
	require.Contains(t, req.Args, "regexp")
}

func TestParseRequestEmptyLine(t *testing.T) {
	require.Equal(t, query.Request{}, parseRequest(""))
}
