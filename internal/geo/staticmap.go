package geo

import (
	"fmt"
	"net/url"
	"strconv"

	"pizzabot/internal/models"
)

const staticMapBaseURL = "https://static-maps.yandex.ru/1.x/"

// StaticMapURL returns a Yandex static map image centred on c with a marker
func StaticMapURL(c models.Coordinates) string {
	point := fmtCoord(c.Lon) + "," + fmtCoord(c.Lat)
	q := url.Values{
		"ll": {point},
		"z":  {"16"},
		"l":  {"map"},
		"pt": {point + ",pm2rdm"},
	}
	return fmt.Sprintf("%s?%s", staticMapBaseURL, q.Encode())
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
