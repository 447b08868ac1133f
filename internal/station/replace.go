package station

import "reflect"

// ReplaceText replaces every string in the tree rooted at root that is
// exactly equal to old. root must be a pointer. It returns the number of
// replacements made.
func ReplaceText(root any, old, replacement string) int {
	if old == "" || old == replacement {
		return 0
	}
	v := reflect.ValueOf(root)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return 0
	}
	return replaceValue(v.Elem(), old, replacement)
}

func replaceValue(v reflect.Value, old, replacement string) int {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() && v.String() == old {
			v.SetString(replacement)
			return 1
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			return replaceValue(v.Elem(), old, replacement)
		}
	case reflect.Struct:
		n := 0
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				n += replaceValue(v.Field(i), old, replacement)
			}
		}
		return n
	case reflect.Slice, reflect.Array:
		n := 0
		for i := 0; i < v.Len(); i++ {
			n += replaceValue(v.Index(i), old, replacement)
		}
		return n
	case reflect.Map:
		n := 0
		iter := v.MapRange()
		for iter.Next() {
			val := iter.Value()
			if val.Kind() == reflect.String {
				if val.String() == old {
					v.SetMapIndex(iter.Key(), reflect.ValueOf(replacement).Convert(val.Type()))
					n++
				}
				continue
			}
			// map values are not addressable; copy, rewrite, store back
			cp := reflect.New(val.Type()).Elem()
			cp.Set(val)
			if c := replaceValue(cp, old, replacement); c > 0 {
				v.SetMapIndex(iter.Key(), cp)
				n += c
			}
		}
		return n
	}
	return 0
}
