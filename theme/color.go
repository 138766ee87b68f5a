package theme

import (
	"fmt"
	"image/color"
)

// parseColor accepts the hex color forms VSCode themes use: #rgb, #rgba,
// #rrggbb, and #rrggbbaa (alpha defaults to fully opaque when omitted).
func parseColor(s string) (color.Color, error) {
	if len(s) == 0 || s[0] != '#' {
		return nil, fmt.Errorf("theme: color %q: missing leading #", s)
	}
	hex := s[1:]

	switch len(hex) {
	case 3, 4:
		r, err := hexPairShort(hex[0])
		if err != nil {
			return nil, err
		}
		g, err := hexPairShort(hex[1])
		if err != nil {
			return nil, err
		}
		b, err := hexPairShort(hex[2])
		if err != nil {
			return nil, err
		}
		a := byte(0xff)
		if len(hex) == 4 {
			a, err = hexPairShort(hex[3])
			if err != nil {
				return nil, err
			}
		}
		return color.NRGBA{R: r, G: g, B: b, A: a}, nil
	case 6, 8:
		r, err := hexPair(hex[0:2])
		if err != nil {
			return nil, err
		}
		g, err := hexPair(hex[2:4])
		if err != nil {
			return nil, err
		}
		b, err := hexPair(hex[4:6])
		if err != nil {
			return nil, err
		}
		a := byte(0xff)
		if len(hex) == 8 {
			a, err = hexPair(hex[6:8])
			if err != nil {
				return nil, err
			}
		}
		return color.NRGBA{R: r, G: g, B: b, A: a}, nil
	default:
		return nil, fmt.Errorf("theme: color %q: unsupported length", s)
	}
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("theme: invalid hex digit %q", c)
	}
}

func hexPairShort(c byte) (byte, error) {
	v, err := hexDigit(c)
	if err != nil {
		return 0, err
	}
	return v<<4 | v, nil
}

func hexPair(s string) (byte, error) {
	hi, err := hexDigit(s[0])
	if err != nil {
		return 0, err
	}
	lo, err := hexDigit(s[1])
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}
