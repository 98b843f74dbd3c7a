package filter

import (
	"fmt"
	"math"
)

// NeutralKelvin is the daylight temperature at which no tint is applied.
const NeutralKelvin = 5500

// KelvinToRGB approximates the RGB color of a black body at kelvin
// (Tanner Helland's fit), each channel in [0,1].
func KelvinToRGB(kelvin float64) (r, g, b float64) {
	t := kelvin / 100

	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}

	switch {
	case t >= 66:
		b = 255
	case t <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}

	return clamp255(r) / 255, clamp255(g) / 255, clamp255(b) / 255
}

// WhiteBalanceGains returns the per-channel multipliers for kelvin. ok is
// false when no tint applies (auto or neutral).
func WhiteBalanceGains(kelvin int) (r, g, b float64, ok bool) {
	if kelvin <= 0 || kelvin == NeutralKelvin {
		return 1, 1, 1, false
	}
	r, g, b = KelvinToRGB(float64(kelvin))
	return r, g, b, true
}

// TemperatureName labels a color temperature for display.
func TemperatureName(kelvin int) string {
	switch {
	case kelvin < 3000:
		return "Warm/Candlelight"
	case kelvin < 4000:
		return "Warm/Incandescent"
	case kelvin < 5000:
		return "Neutral/Fluorescent"
	case kelvin < 6000:
		return "Daylight"
	case kelvin < 7000:
		return "Cool/Overcast"
	default:
		return "Cool/Shade"
	}
}

// WhiteBalanceCSS returns the preview approximation of a temperature as a
// sepia + hue-rotate compositing filter; "" when neutral.
func WhiteBalanceCSS(kelvin int) string {
	switch {
	case kelvin <= 0 || kelvin == NeutralKelvin:
		return ""
	case kelvin < NeutralKelvin:
		warmth := float64(NeutralKelvin-kelvin) / 3500
		return fmt.Sprintf("sepia(%.3g) hue-rotate(%.3gdeg)", warmth*0.3, -warmth*20)
	default:
		coolness := float64(kelvin-NeutralKelvin) / 2500
		return fmt.Sprintf("sepia(%.3g) hue-rotate(%.3gdeg)", coolness*0.15, coolness*30)
	}
}
