package upnp

import "context"

// Browse flags.
const (
	BrowseDirectChildren = "BrowseDirectChildren"
	BrowseMetadata       = "BrowseMetadata"
)

// QueueObjectID is the content-directory id of the coordinator's play queue.
const QueueObjectID = "Q:0"

// BrowseResult is the reply of Browse. Result holds the DIDL-Lite document.
type BrowseResult struct {
	Result         string
	NumberReturned int
	TotalMatches   int
	UpdateID       int
}

// Browse lists objects of the player's content directory.
func (c *Client) Browse(ctx context.Context, addr Address, objectID, flag string, start, count int) (*BrowseResult, error) {
	v, err := c.callValues(ctx, addr, ContentDirectoryPath, "Browse", Args{
		"ObjectID":       objectID,
		"BrowseFlag":     flag,
		"Filter":         "*",
		"StartingIndex":  start,
		"RequestedCount": count,
		"SortCriteria":   "",
	})
	if err != nil {
		return nil, err
	}
	return &BrowseResult{
		Result:         v["Result"],
		NumberReturned: atoi(v["NumberReturned"]),
		TotalMatches:   atoi(v["TotalMatches"]),
		UpdateID:       atoi(v["UpdateID"]),
	}, nil
}

// GetZoneGroupState returns the household topology document.
func (c *Client) GetZoneGroupState(ctx context.Context, addr Address) (string, error) {
	return c.callValue(ctx, addr, ZoneGroupTopologyPath, "GetZoneGroupState", nil)
}
