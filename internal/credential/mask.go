package credential

// Mask renders a secret as its first and last four characters with an
// ellipsis in between. Secrets short enough to be reconstructed from
// both ends are fully masked.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
