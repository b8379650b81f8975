//go:build epdcolor

package palette

// Native is the capability of the panel being built for.
const Native = Color
