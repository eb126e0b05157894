package fuzzy

// Levenshtein calculates the edit distance between two strings: how many
// single-character insertions, deletions or substitutions turn one into the
// other.
func Levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
	}
	for i := 0; i <= m; i++ {
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			d[i][j] = min3(
				d[i-1][j]+1,
				d[i][j-1]+1,
				d[i-1][j-1]+cost,
			)
		}
	}
	return d[m][n]
}

// TokenMatch reports whether two already-normalized tokens should count as
// the same word. Short tokens must match exactly; longer ones tolerate one
// edit so minor typos still hit.
func TokenMatch(query, token string) bool {
	if query == token {
		return true
	}
	if len(query) < 5 || len(token) < 5 {
		return false
	}
	return Levenshtein(query, token) <= 1
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
