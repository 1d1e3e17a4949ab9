package config

import (
	"strconv"
	"strings"
)

// NormalizeBBoxArgs rewrites "--bbox L B R T" into "--bbox=L,B,R,T" so negative
// coordinates are not mistaken for flags. A single quoted "L B R T" value is
// accepted too.
func NormalizeBBoxArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] != "--bbox" {
			out = append(out, args[i])
			continue
		}
		var vals []string
		j := i + 1
		for ; j < len(args) && len(vals) < 4; j++ {
			fields := strings.Fields(args[j])
			if len(fields) == 0 || !isNumber(fields[0]) {
				break
			}
			vals = append(vals, fields...)
		}
		out = append(out, "--bbox="+strings.Join(vals, ","))
		i = j - 1
	}
	return out
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
