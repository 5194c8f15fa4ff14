// Package validate checks request structs against their `validate` tags.
// Errors are keyed by JSON path, so a bad quantity on the second order line
// comes back as "items[1].quantity".
//
//	type Line struct {
//	    ProductID uint `json:"product_id" validate:"required"`
//	    Quantity  int  `json:"quantity"   validate:"gte=1,lte=1000"`
//	}
//	type Cart struct {
//	    Items []Line `json:"items" validate:"required,max=100,dive"`
//	}
//
// Rules: required, nullable, email, url, alpha_dash, min=N, max=N, gte=N,
// lte=N, between=lo,hi, in=a,b,c, regex=pattern, dive. min, max and between
// measure numbers by value, strings by rune count and slices by length.
// Only the first failing rule of a field is reported.
package validate

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// check returns an error message, or "" when v passes.
type check func(field string, v reflect.Value) string

type fieldPlan struct {
	index    int
	name     string
	nullable bool
	dive     bool
	checks   []check
}

// plans caches the parsed tags per struct type.
var plans sync.Map // reflect.Type -> []fieldPlan

// Struct validates v (a struct or pointer to one). The result is empty when
// v is valid.
func Struct(v interface{}) map[string]string {
	errs := make(map[string]string)
	rv := indirect(reflect.ValueOf(v))
	if rv.Kind() == reflect.Struct {
		walk(rv, "", errs)
	}
	return errs
}

func HasErrors(errs map[string]string) bool { return len(errs) > 0 }

func walk(rv reflect.Value, prefix string, errs map[string]string) {
	for _, f := range planFor(rv.Type()) {
		value := rv.Field(f.index)
		if f.nullable && isEmpty(value) {
			continue
		}
		path := prefix + f.name
		if msg := firstFailure(f, value); msg != "" {
			errs[path] = msg
			continue
		}
		if f.dive && (value.Kind() == reflect.Slice || value.Kind() == reflect.Array) {
			for i := 0; i < value.Len(); i++ {
				if elem := indirect(value.Index(i)); elem.Kind() == reflect.Struct {
					walk(elem, fmt.Sprintf("%s[%d].", path, i), errs)
				}
			}
		}
	}
}

func firstFailure(f fieldPlan, v reflect.Value) string {
	for _, c := range f.checks {
		if msg := c(f.name, v); msg != "" {
			return msg
		}
	}
	return ""
}

func planFor(t reflect.Type) []fieldPlan {
	if p, ok := plans.Load(t); ok {
		return p.([]fieldPlan)
	}
	var fields []fieldPlan
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("validate")
		if tag == "" || !sf.IsExported() {
			continue
		}
		f := fieldPlan{index: i, name: jsonName(sf)}
		for _, rule := range splitRules(tag) {
			key, param, _ := strings.Cut(rule, "=")
			switch key {
			case "nullable":
				f.nullable = true
			case "dive":
				f.dive = true
			default:
				if c := compile(key, param); c != nil {
					f.checks = append(f.checks, c)
				}
			}
		}
		fields = append(fields, f)
	}
	p, _ := plans.LoadOrStore(t, fields)
	return p.([]fieldPlan)
}

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// compile turns one rule into a check. Unknown rules are ignored.
func compile(key, param string) check {
	switch key {
	case "required":
		return func(field string, v reflect.Value) string {
			if isEmpty(v) {
				return fmt.Sprintf("The %s field is required.", field)
			}
			return ""
		}
	case "email":
		return func(field string, v reflect.Value) string {
			if !emailRE.MatchString(text(v)) {
				return fmt.Sprintf("The %s must be a valid email address.", field)
			}
			return ""
		}
	case "url":
		return func(field string, v reflect.Value) string {
			u, err := url.ParseRequestURI(text(v))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Sprintf("The %s must be a valid URL.", field)
			}
			return ""
		}
	case "alpha_dash":
		return func(field string, v reflect.Value) string {
			for _, c := range text(v) {
				if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != '_' {
					return fmt.Sprintf("The %s may only contain letters, numbers, dashes and underscores.", field)
				}
			}
			return ""
		}
	case "min":
		n := number(param)
		return func(field string, v reflect.Value) string {
			if size, unit := measure(v); size < n {
				return fmt.Sprintf("The %s must be at least %s%s.", field, param, unit)
			}
			return ""
		}
	case "max":
		n := number(param)
		return func(field string, v reflect.Value) string {
			size, unit := measure(v)
			if size <= n {
				return ""
			}
			if unit == " items" {
				return fmt.Sprintf("The %s must not have more than %s items.", field, param)
			}
			return fmt.Sprintf("The %s must not be greater than %s%s.", field, param, unit)
		}
	case "gte", "lte":
		n := number(param)
		word := map[string]string{"gte": "greater", "lte": "less"}[key]
		return func(field string, v reflect.Value) string {
			f, ok := numeric(v)
			if ok && ((key == "gte" && f >= n) || (key == "lte" && f <= n)) {
				return ""
			}
			return fmt.Sprintf("The %s must be %s than or equal to %s.", field, word, param)
		}
	case "between":
		lo, hi, ok := strings.Cut(param, ",")
		if !ok {
			return nil
		}
		l, h := number(lo), number(hi)
		return func(field string, v reflect.Value) string {
			if size, unit := measure(v); size < l || size > h {
				return fmt.Sprintf("The %s must be between %s and %s%s.", field, lo, hi, unit)
			}
			return ""
		}
	case "in":
		allowed := make(map[string]bool)
		for _, a := range strings.Split(param, ",") {
			allowed[strings.TrimSpace(a)] = true
		}
		return func(field string, v reflect.Value) string {
			if !allowed[text(v)] {
				return fmt.Sprintf("The selected %s is invalid.", field)
			}
			return ""
		}
	case "regex":
		re, err := regexp.Compile(param)
		return func(field string, v reflect.Value) string {
			if err != nil {
				return fmt.Sprintf("The %s has an invalid validation pattern.", field)
			}
			if !re.MatchString(text(v)) {
				return fmt.Sprintf("The %s format is invalid.", field)
			}
			return ""
		}
	}
	return nil
}

// splitRules splits a tag on commas, except inside the parameter list of
// in= and between=, which runs until the next known rule name.
func splitRules(tag string) []string {
	var rules []string
	parts := strings.Split(tag, ",")
	for i := 0; i < len(parts); i++ {
		rule := parts[i]
		if strings.HasPrefix(rule, "in=") || strings.HasPrefix(rule, "between=") {
			for i+1 < len(parts) && !isRuleName(parts[i+1]) {
				i++
				rule += "," + parts[i]
			}
		}
		if rule = strings.TrimSpace(rule); rule != "" {
			rules = append(rules, rule)
		}
	}
	return rules
}

func isRuleName(s string) bool {
	key, _, _ := strings.Cut(strings.TrimSpace(s), "=")
	switch key {
	case "required", "nullable", "email", "url", "alpha_dash", "dive",
		"min", "max", "gte", "lte", "between", "in", "regex":
		return true
	}
	return false
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// text renders v for the string rules. fmt picks up String() methods, so
// decimal.Decimal reads as its canonical form.
func text(v reflect.Value) string {
	v = indirect(v)
	switch {
	case !v.IsValid():
		return ""
	case v.Kind() == reflect.String:
		return v.String()
	}
	return fmt.Sprint(v.Interface())
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Bool:
		return false
	}
	if f, ok := kindNumber(v); ok {
		return f == 0
	}
	return false
}

func kindNumber(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

// numeric reads numeric kinds directly and anything else through its text,
// which covers decimal.Decimal and numeric strings.
func numeric(v reflect.Value) (float64, bool) {
	if f, ok := kindNumber(v); ok {
		return f, true
	}
	f, err := strconv.ParseFloat(text(v), 64)
	return f, err == nil
}

// measure is what min, max and between compare: the value of a number,
// the length of a collection or the rune count of anything else.
func measure(v reflect.Value) (float64, string) {
	if f, ok := kindNumber(v); ok {
		return f, ""
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return float64(v.Len()), " items"
	}
	return float64(len([]rune(text(v)))), " characters"
}

func number(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return strings.ToLower(f.Name)
	}
	return name
}
