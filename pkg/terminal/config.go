package terminal

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/zdbg/zdb/pkg/config"
	"github.com/zdbg/zdb/pkg/symbols"
)

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return fmt.Errorf("wrong number of arguments to \"config\"")
	default:
		return configureSet(t, args)
	}
}

type configureIterator struct {
	cfgValue reflect.Value
	cfgType  reflect.Type
	i        int
}

func iterateConfiguration(conf *config.Config) *configureIterator {
	cfgValue := reflect.ValueOf(conf).Elem()
	cfgType := cfgValue.Type()

	return &configureIterator{cfgValue, cfgType, -1}
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get("yaml")
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	field = it.cfgValue.Field(it.i)
	return
}

func configureFindFieldByName(conf *config.Config, name string) reflect.Value {
	it := iterateConfiguration(conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == name {
			return field
		}
	}
	return reflect.ValueOf(nil)
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)

	it := iterateConfiguration(t.conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == "" || field.Kind() == reflect.Map {
			continue
		}
		if field.Kind() == reflect.Slice {
			if field.Len() == 0 {
				fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
			} else {
				fmt.Fprintf(w, "%s\t%#x\n", fieldName, field)
			}
			continue
		}
		fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
	}
	return w.Flush()
}

func configureSet(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}

	cfgname := v[0]
	rest := v[1:]

	if cfgname == "alias" {
		return configureSetAlias(t, rest)
	}

	field := configureFindFieldByName(t.conf, cfgname)
	if !field.CanAddr() {
		return fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	if field.Kind() == reflect.Slice {
		return configureSetTableBases(field, cfgname, rest)
	}

	if len(rest) != 1 {
		return fmt.Errorf("wrong number of arguments to \"config %s\"", cfgname)
	}
	arg := rest[0]

	switch field.Kind() {
	case reflect.Int:
		n, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("argument to %q must be a number", cfgname)
		}
		if n < 0 {
			return fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
		}
		field.SetInt(n)
	case reflect.Bool:
		field.SetBool(arg == "true")
	case reflect.String:
		if cfgname == "map-file" {
			syms, err := symbols.Load(arg)
			if err != nil {
				return err
			}
			t.symbols = syms
		}
		field.SetString(arg)
	default:
		return fmt.Errorf("unsupported type for configuration key %q", cfgname)
	}
	return nil
}

func configureSetTableBases(field reflect.Value, cfgname string, rest []string) error {
	if len(rest) != 0 && len(rest) != 4 {
		return fmt.Errorf("\"config %s\" needs 4 addresses", cfgname)
	}
	bases := make([]uint32, len(rest))
	for i := range rest {
		n, err := parseNumber(rest[i])
		if err != nil {
			return err
		}
		bases[i] = n
	}
	field.Set(reflect.ValueOf(bases))
	return nil
}

func configureSetAlias(t *Term, argv []string) error {
	switch len(argv) {
	case 1: // delete alias rule
		for k := range t.conf.Aliases {
			v := t.conf.Aliases[k]
			for i := 0; i < len(v); i++ {
				if v[i] == argv[0] {
					copy(v[i:], v[i+1:])
					v = v[:len(v)-1]
					i--
				}
			}
			t.conf.Aliases[k] = v
		}
	case 2: // add alias rule
		alias, cmd := argv[1], argv[0]
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[cmd] = append(t.conf.Aliases[cmd], alias)
	default:
		return fmt.Errorf("wrong number of arguments to \"config alias\"")
	}
	t.cmds.Merge(t.conf.Aliases)
	return nil
}
