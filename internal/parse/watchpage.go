package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	inlinePlayerResponsePattern = regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*(\{.+?\})\s*;`)
	playerScriptURLPattern      = regexp.MustCompile(`"jsUrl"\s*:\s*"([^"]+/base\.js)"`)
	playerScriptURLAltPattern   = regexp.MustCompile(`(/s/player/[A-Za-z0-9_-]+/[A-Za-z0-9._/-]*/base\.js)`)
)

// ExtractInlinePlayerResponse pulls the initial player response JSON object
// embedded in a watch page, avoiding an extra network round trip for the
// primary persona.
func ExtractInlinePlayerResponse(watchPageBody []byte) (*PlayerResponse, error) {
	m := inlinePlayerResponsePattern.FindSubmatch(watchPageBody)
	if len(m) < 2 {
		return nil, fmt.Errorf("parse: inline player response not found")
	}
	var resp PlayerResponse
	if err := json.Unmarshal(m[1], &resp); err != nil {
		return nil, fmt.Errorf("parse: decoding inline player response: %w", err)
	}
	return &resp, nil
}

// ExtractBasePlayerScriptURL finds the base.js player script path embedded
// in a watch page and normalizes it to an absolute URL.
func ExtractBasePlayerScriptURL(watchPageBody []byte) (string, error) {
	for _, re := range []*regexp.Regexp{playerScriptURLPattern, playerScriptURLAltPattern} {
		m := re.FindSubmatch(watchPageBody)
		if len(m) < 2 {
			continue
		}
		candidate := strings.TrimSpace(string(m[1]))
		candidate = strings.ReplaceAll(candidate, `\/`, "/")
		if candidate == "" {
			continue
		}
		if strings.HasPrefix(candidate, "//") {
			return "https:" + candidate, nil
		}
		if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
			return candidate, nil
		}
		return "https://www.youtube.com" + candidate, nil
	}
	return "", fmt.Errorf("parse: base player script url not found")
}

var nFunctionNameRegexps = []*regexp.Regexp{
	regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]{0,3})\[(\d+)\](.+)\|\|([a-zA-Z0-9]{0,3})`),
	regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\[(\d+)\]\([a-zA-Z0-9$]{1,}\).+\|\|([a-zA-Z0-9$]{1,})`),
	regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
	regexp.MustCompile(`\.get\("n"\).*?&&.*?([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
}

// ExtractNFunctionSource locates the n-parameter descrambling function in
// the player script and returns its source as a standalone JS function
// expression. The name patterns are kept as a list so a new player build
// that rotates the call shape can be matched by appending a pattern and
// retesting against a captured script snapshot.
func ExtractNFunctionSource(playerJS []byte) (string, error) {
	name, err := findNFunctionName(playerJS)
	if err != nil {
		return "", err
	}
	return extractFunctionBody(playerJS, name)
}

func findNFunctionName(jsBody []byte) (string, error) {
	for _, re := range nFunctionNameRegexps {
		m := re.FindSubmatch(jsBody)
		if len(m) == 0 {
			continue
		}
		switch len(m) {
		case 5, 4:
			idxGroup := m[2]
			if string(idxGroup) == "0" {
				return string(m[len(m)-1]), nil
			}
			return string(m[1]), nil
		default:
			return string(m[1]), nil
		}
	}
	return "", fmt.Errorf("parse: unable to locate n-function name")
}

func extractFunctionBody(jsBody []byte, name string) (string, error) {
	name = strings.TrimSpace(name)
	defPatterns := [][]byte{
		[]byte(name + "=function("),
		[]byte(name + " = function("),
		[]byte("function " + name + "("),
	}
	start := -1
	for _, def := range defPatterns {
		if idx := bytes.Index(jsBody, def); idx >= 0 {
			start = idx
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("parse: n-function body for %q not found", name)
	}

	openBrace := bytes.IndexByte(jsBody[start:], '{')
	if openBrace < 0 {
		return "", fmt.Errorf("parse: n-function %q missing body", name)
	}
	pos := start + openBrace + 1
	var strChar byte
	for brackets := 1; brackets > 0; pos++ {
		if pos >= len(jsBody) {
			return "", fmt.Errorf("parse: unterminated n-function body for %q", name)
		}
		b := jsBody[pos]
		switch b {
		case '{':
			if strChar == 0 {
				brackets++
			}
		case '}':
			if strChar == 0 {
				brackets--
			}
		case '`', '"', '\'':
			if pos > 1 && jsBody[pos-1] == '\\' && jsBody[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	src := jsBody[start:pos]
	if bytes.HasPrefix(src, []byte(name+"=")) {
		src = src[len(name)+1:]
	} else if bytes.HasPrefix(src, []byte(name+" = ")) {
		src = src[len(name)+3:]
	} else if bytes.HasPrefix(src, []byte("function "+name)) {
		src = append([]byte("function"), src[len("function "+name):]...)
	}
	return string(src), nil
}
