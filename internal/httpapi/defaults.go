package httpapi

import "capalert/internal/model"

// DefaultSources seeds the registry with a small set of well-known public
// CAP feeds when it is empty (spec.md §6 "POST /cap-sources/seed").
var DefaultSources = []model.Source{
	{
		Name:                 "NWS All Alerts",
		FeedURL:              "https://alerts.weather.gov/cap/us.php?x=0",
		Country:              "US",
		Language:             "en-US",
		Active:               true,
		Default:              true,
		FetchIntervalSeconds: 120,
	},
	{
		Name:                 "Environment Canada",
		FeedURL:              "https://www.weather.gc.ca/rss/warning/atom_e.xml",
		Country:              "CA",
		Language:             "en-CA",
		Active:               true,
		FetchIntervalSeconds: 300,
	},
}
