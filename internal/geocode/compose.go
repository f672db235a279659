// Package geocode turns GPS coordinates into short place captions such as
// "广东省-深圳市-南山区-腾讯大厦".
package geocode

import "strings"

// Separator joins the caption parts.
const Separator = "-"

// Address keys are tried in order; the first non-empty value wins.
var (
	provinceKeys = []string{"state"}
	cityKeys     = []string{"state_district", "city"}
	districtKeys = []string{"county", "district", "city_district", "suburb"}
	poiKeys      = []string{"building", "amenity", "tourism", "leisure", "historic", "shop", "office", "road", "village"}
)

// Compose builds a caption from a provider address breakdown:
// province, city, district and point of interest. Redundant parts are
// dropped, so municipalities do not read "北京市-北京市". The result is empty
// when no part is known.
func Compose(addr map[string]string) string {
	province := firstOf(addr, provinceKeys)
	city := firstOf(addr, cityKeys)
	district := firstOf(addr, districtKeys)
	poi := firstOf(addr, poiKeys)

	if province != "" && city != "" && (strings.Contains(city, province) || strings.Contains(province, city)) {
		province = ""
	}
	if district != "" && city != "" && strings.Contains(city, district) {
		district = ""
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{province, city, district, poi} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, Separator)
}

func firstOf(addr map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(addr[k]); v != "" {
			return v
		}
	}
	return ""
}
