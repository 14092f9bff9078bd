package catalog

import "math"

var ratingLabels = map[int]string{
	1: "Very poor",
	2: "Poor",
	3: "Acceptable",
	4: "Good",
	5: "Excellent",
}

// RatingLabel describes an average rating rounded to the nearest star.
func RatingLabel(rating float64) string {
	return ratingLabels[int(math.Round(rating))]
}

func validRating(r int) bool {
	return r >= 1 && r <= 5
}
