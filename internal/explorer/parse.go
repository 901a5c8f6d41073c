package explorer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pendergraft/chainscout/internal/validation"
)

const unverifiedABI = "Contract source code not verified"

// flexString accepts JSON strings, numbers and booleans. Blockscout returns
// some fields Etherscan encodes as strings as native JSON values.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// sourceItem is one entry of a getsourcecode result
type sourceItem struct {
	SourceCode           flexString `json:"SourceCode"`
	ABI                  flexString `json:"ABI"`
	ContractName         flexString `json:"ContractName"`
	CompilerVersion      flexString `json:"CompilerVersion"`
	OptimizationUsed     flexString `json:"OptimizationUsed"`
	Runs                 flexString `json:"Runs"`
	ConstructorArguments flexString `json:"ConstructorArguments"`
	EVMVersion           flexString `json:"EVMVersion"`
	Library              flexString `json:"Library"`
	LicenseType          flexString `json:"LicenseType"`
	Proxy                flexString `json:"Proxy"`
	Implementation       flexString `json:"Implementation"`
	SwarmSource          flexString `json:"SwarmSource"`
}

func parseSource(item sourceItem) *ContractSource {
	code := string(item.SourceCode)
	abi := string(item.ABI)

	src := &ContractSource{
		ContractName:         orDefault(string(item.ContractName), "Unknown"),
		CompilerVersion:      orDefault(string(item.CompilerVersion), "Unknown"),
		CompilerSemver:       validation.CompilerSemver(string(item.CompilerVersion)),
		OptimizationUsed:     isTruthy(string(item.OptimizationUsed)),
		ConstructorArguments: string(item.ConstructorArguments),
		EVMVersion:           orDefault(string(item.EVMVersion), "default"),
		Library:              string(item.Library),
		LicenseType:          orDefault(string(item.LicenseType), "Unknown"),
		Proxy:                isTruthy(string(item.Proxy)),
		Implementation:       string(item.Implementation),
		SwarmSource:          string(item.SwarmSource),
		SourceCode:           code,
		Sources:              parseSourceFiles(code, string(item.ContractName)),
		IsVerified:           code != "" && code != unverifiedABI && abi != unverifiedABI,
	}
	if runs, err := strconv.Atoi(string(item.Runs)); err == nil {
		src.OptimizationRuns = runs
	}
	if abi != "" && abi != unverifiedABI && json.Valid([]byte(abi)) {
		src.ABI = json.RawMessage(abi)
	}
	return src
}

// parseSourceFiles splits a SourceCode field into named files. Etherscan wraps
// standard-json input in double braces; multi-file uploads are a plain JSON map.
func parseSourceFiles(code, contractName string) map[string]string {
	files := make(map[string]string)
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || trimmed == unverifiedABI {
		return files
	}

	if strings.HasPrefix(trimmed, "{") {
		raw := trimmed
		if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
			raw = trimmed[1 : len(trimmed)-1]
		}

		var standard struct {
			Sources map[string]struct {
				Content string `json:"content"`
			} `json:"sources"`
		}
		if err := json.Unmarshal([]byte(raw), &standard); err == nil && len(standard.Sources) > 0 {
			for name, f := range standard.Sources {
				files[name] = f.Content
			}
			return files
		}

		var plain map[string]struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(raw), &plain); err == nil && len(plain) > 0 {
			for name, f := range plain {
				files[name] = f.Content
			}
			return files
		}

		files["main.sol"] = code
		return files
	}

	name := contractName
	if name == "" {
		name = "Contract"
	}
	files[name+".sol"] = code
	return files
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
