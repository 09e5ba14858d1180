package service

import "unicode/utf8"

// TokenEstimator approximates how many model tokens a text costs.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator counts one token per CharsPerToken characters, rounded up.
type CharEstimator struct {
	CharsPerToken int
}

// Estimate returns the approximate token count of text.
func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}

	n := utf8.RuneCountInString(text)

	return (n + per - 1) / per
}
