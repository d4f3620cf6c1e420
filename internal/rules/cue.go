package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadError is a rule-file problem with source position when CUE provides
// one.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// LoadFile loads routing rules from a CUE file or a directory of CUE files.
// The top-level "rules" field must be a list of
//
//	{code: string, destination: string, default: bool}
//
// where destination and default are optional. List order is preserved; it
// becomes the configuration's table order.
func LoadFile(path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Message: fmt.Sprintf("rules file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("error accessing rules file: %v", err)}
	}

	args := []string{filepath.Base(path)}
	dir := filepath.Dir(path)
	if info.IsDir() {
		args = []string{"."}
		dir = path
	}

	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	rulesVal := value.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &LoadError{Message: "no top-level \"rules\" list found", Pos: value.Pos()}
	}

	iter, err := rulesVal.List()
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("\"rules\" is not a list: %v", err), Pos: rulesVal.Pos()}
	}

	var rules []Rule
	for iter.Next() {
		rule, err := compileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, &LoadError{Message: "\"rules\" list is empty", Pos: rulesVal.Pos()}
	}
	return rules, nil
}

// compileRule parses one rule struct out of a CUE list element.
func compileRule(v cue.Value) (Rule, error) {
	var rule Rule

	codeVal := v.LookupPath(cue.ParsePath("code"))
	if codeVal.Exists() {
		code, err := codeVal.String()
		if err != nil {
			return Rule{}, &LoadError{Message: fmt.Sprintf("code: %v", err), Pos: codeVal.Pos()}
		}
		rule.Code = code
	}

	destVal := v.LookupPath(cue.ParsePath("destination"))
	if destVal.Exists() {
		dest, err := destVal.String()
		if err != nil {
			return Rule{}, &LoadError{Message: fmt.Sprintf("destination: %v", err), Pos: destVal.Pos()}
		}
		rule.Destination = dest
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		def, err := defVal.Bool()
		if err != nil {
			return Rule{}, &LoadError{Message: fmt.Sprintf("default: %v", err), Pos: defVal.Pos()}
		}
		rule.Default = def
	}

	if rule.Code == "" && !rule.Default {
		return Rule{}, &LoadError{Message: "rule needs a code unless it is the default", Pos: v.Pos()}
	}
	return rule, nil
}
