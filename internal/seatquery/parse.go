package seatquery

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Seat is one cell of the rendered seat map.
type Seat struct {
	Number    int
	Available bool
}

// ParseSeatMap extracts seats from the portal's seat map HTML. A seat
// cell is unavailable when its wrapper carries a disabled or occupied
// class. Cells without a numeric label (aisles, legends) are skipped.
func ParseSeatMap(html string) ([]Seat, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var seats []Seat
	doc.Find("div.seat-item-wrap").Each(func(_ int, wrap *goquery.Selection) {
		label := strings.TrimSpace(wrap.Find("div.word-wrap").First().Text())
		number, err := strconv.Atoi(label)
		if err != nil {
			return
		}

		class, _ := wrap.Attr("class")
		unavailable := strings.Contains(class, "disabled") || strings.Contains(class, "occupied")
		seats = append(seats, Seat{Number: number, Available: !unavailable})
	})
	return seats, nil
}

// AvailableNumbers filters a parsed seat map down to free seat numbers.
func AvailableNumbers(seats []Seat) []int {
	var nums []int
	for _, s := range seats {
		if s.Available {
			nums = append(nums, s.Number)
		}
	}
	return nums
}
