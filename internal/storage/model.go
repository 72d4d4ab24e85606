package storage

import "sort"

// TitleData is the per-title shape produced by the fetcher: every rank the
// title was observed at within the batch, plus its links.
type TitleData struct {
	Ranks     []int  `json:"ranks"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

// NewsItem is one ranked headline from one platform. After a day of
// merging, Ranks holds the rank at every observation in temporal order and
// Count how many crawls saw it.
type NewsItem struct {
	Title      string `json:"title"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Rank       int    `json:"rank"`
	URL        string `json:"url"`
	MobileURL  string `json:"mobile_url"`
	CrawlTime  string `json:"crawl_time"`
	Ranks      []int  `json:"ranks"`
	FirstTime  string `json:"first_time"`
	LastTime   string `json:"last_time"`
	Count      int    `json:"count"`
}

// NewsData is one batch (or one merged day) of items grouped by platform.
// Date is a YYYY-MM-DD folder name, CrawlTime an HH-MM filename stamp.
type NewsData struct {
	Date      string                `json:"date"`
	CrawlTime string                `json:"crawl_time"`
	Items     map[string][]NewsItem `json:"items"`
	IDToName  map[string]string     `json:"id_to_name"`
	FailedIDs []string              `json:"failed_ids"`
}

// MissingRank marks a headline whose board position was not reported.
const MissingRank = 99

// ConvertCrawlResults flattens fetcher output into a NewsData batch. Items
// within a platform are ordered by rank, then title, so the result is
// deterministic.
func ConvertCrawlResults(
	results map[string]map[string]TitleData,
	idToName map[string]string,
	failedIDs []string,
	crawlTime, crawlDate string,
) *NewsData {
	items := make(map[string][]NewsItem, len(results))

	for sourceID, titles := range results {
		list := make([]NewsItem, 0, len(titles))
		for title, td := range titles {
			rank := MissingRank
			if len(td.Ranks) > 0 {
				rank = td.Ranks[0]
			}
			list = append(list, NewsItem{
				Title:      title,
				SourceID:   sourceID,
				SourceName: idToName[sourceID],
				Rank:       rank,
				URL:        td.URL,
				MobileURL:  td.MobileURL,
				CrawlTime:  crawlTime,
				Ranks:      td.Ranks,
				FirstTime:  crawlTime,
				LastTime:   crawlTime,
				Count:      1,
			})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Rank != list[j].Rank {
				return list[i].Rank < list[j].Rank
			}
			return list[i].Title < list[j].Title
		})
		items[sourceID] = list
	}

	return &NewsData{
		Date:      crawlDate,
		CrawlTime: crawlTime,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}
}

// TotalItems counts items across all platforms.
func (d *NewsData) TotalItems() int {
	n := 0
	for _, list := range d.Items {
		n += len(list)
	}
	return n
}

// PlatformIDs returns the platform ids present in the batch, sorted.
func (d *NewsData) PlatformIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for id := range d.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
