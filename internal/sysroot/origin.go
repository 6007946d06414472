package sysroot

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// ParseOrigin decodes an origin file: INI-like, a single [origin]
// section with keys refspec, override-commit, unconfigured-state, and
// unlocked (spec.md §4.8).
func ParseOrigin(data []byte) (*types.Origin, error) {
	var o types.Origin
	inOrigin := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inOrigin = strings.EqualFold(strings.TrimSpace(line[1:len(line)-1]), "origin")
			continue
		}
		if !inOrigin {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "refspec":
			o.Refspec = value
		case "override-commit":
			o.OverrideCommit = value
		case "unconfigured-state":
			o.UnconfiguredState = value
		case "unlocked":
			o.Unlocked = value == "true" || value == "hotfix" || value == "development"
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "reading origin file").WithCause(err)
	}
	if o.Refspec == "" {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "origin file carries no refspec")
	}
	return &o, nil
}

// EncodeOrigin renders an Origin back to its on-disk INI-like form.
func EncodeOrigin(o *types.Origin) []byte {
	var buf bytes.Buffer
	buf.WriteString("[origin]\n")
	fmt.Fprintf(&buf, "refspec=%s\n", o.Refspec)
	if o.OverrideCommit != "" {
		fmt.Fprintf(&buf, "override-commit=%s\n", o.OverrideCommit)
	}
	if o.UnconfiguredState != "" {
		fmt.Fprintf(&buf, "unconfigured-state=%s\n", o.UnconfiguredState)
	}
	if o.Unlocked {
		buf.WriteString("unlocked=hotfix\n")
	}
	return buf.Bytes()
}
