package upnp

import (
	"fmt"
	"slices"
	"strings"
)

// Control paths of the services this daemon talks to.
const (
	AVTransportPath           = "/MediaRenderer/AVTransport/Control"
	RenderingControlPath      = "/MediaRenderer/RenderingControl/Control"
	GroupRenderingControlPath = "/MediaRenderer/GroupRenderingControl/Control"
	ContentDirectoryPath      = "/MediaServer/ContentDirectory/Control"
	ZoneGroupTopologyPath     = "/ZoneGroupTopology/Control"
	DevicePropertiesPath      = "/DeviceProperties/Control"
)

// ActionSpec declares the argument names of one action, in wire order.
type ActionSpec struct {
	In  []string
	Out []string
}

func spec(in []string, out ...string) ActionSpec {
	return ActionSpec{In: in, Out: out}
}

var (
	instance        = []string{"InstanceID"}
	instanceChannel = []string{"InstanceID", "Channel"}
)

// catalog is built once and never mutated; access goes through Lookup.
var catalog = map[string]map[string]ActionSpec{
	AVTransportPath: {
		"SetAVTransportURI":     spec([]string{"InstanceID", "CurrentURI", "CurrentURIMetaData"}),
		"SetNextAVTransportURI": spec([]string{"InstanceID", "NextURI", "NextURIMetaData"}),
		"AddURIToQueue": spec(
			[]string{"InstanceID", "EnqueuedURI", "EnqueuedURIMetaData", "DesiredFirstTrackNumberEnqueued", "EnqueueAsNext"},
			"FirstTrackNumberEnqueued", "NumTracksAdded", "NewQueueLength",
		),
		"RemoveAllTracksFromQueue": spec(instance),
		"RemoveTrackFromQueue":     spec([]string{"InstanceID", "ObjectID", "UpdateID"}),
		"SaveQueue":                spec([]string{"InstanceID", "Title", "ObjectID"}, "AssignedObjectID"),
		"GetMediaInfo": spec(instance,
			"NrTracks", "MediaDuration", "CurrentURI", "CurrentURIMetaData",
			"NextURI", "NextURIMetaData", "PlayMedium", "RecordMedium", "WriteStatus",
		),
		"GetTransportInfo": spec(instance, "CurrentTransportState", "CurrentTransportStatus", "CurrentSpeed"),
		"GetPositionInfo": spec(instance,
			"Track", "TrackDuration", "TrackMetaData", "TrackURI",
			"RelTime", "AbsTime", "RelCount", "AbsCount",
		),
		"GetTransportSettings": spec(instance, "PlayMode", "RecQualityMode"),
		"SetPlayMode":          spec([]string{"InstanceID", "NewPlayMode"}),
		"Play":                 spec([]string{"InstanceID", "Speed"}),
		"Pause":                spec(instance),
		"Stop":                 spec(instance),
		"Next":                 spec(instance),
		"Previous":             spec(instance),
		"Seek":                 spec([]string{"InstanceID", "Unit", "Target"}),
		"BecomeCoordinatorOfStandaloneGroup": spec(instance,
			"DelegatedGroupCoordinatorID", "NewGroupID",
		),
		"ConfigureSleepTimer": spec([]string{"InstanceID", "NewSleepTimerDuration"}),
		"GetRemainingSleepTimerDuration": spec(instance,
			"RemainingSleepTimerDuration", "CurrentSleepTimerGeneration",
		),
	},
	RenderingControlPath: {
		"GetVolume":         spec(instanceChannel, "CurrentVolume"),
		"SetVolume":         spec([]string{"InstanceID", "Channel", "DesiredVolume"}),
		"SetRelativeVolume": spec([]string{"InstanceID", "Channel", "Adjustment"}, "NewVolume"),
		"GetMute":           spec(instanceChannel, "CurrentMute"),
		"SetMute":           spec([]string{"InstanceID", "Channel", "DesiredMute"}),
		"GetBass":           spec(instance, "CurrentBass"),
		"SetBass":           spec([]string{"InstanceID", "DesiredBass"}),
		"GetTreble":         spec(instance, "CurrentTreble"),
		"SetTreble":         spec([]string{"InstanceID", "DesiredTreble"}),
		"GetLoudness":       spec(instanceChannel, "CurrentLoudness"),
		"SetLoudness":       spec([]string{"InstanceID", "Channel", "DesiredLoudness"}),
	},
	GroupRenderingControlPath: {
		"GetGroupVolume":      spec(instance, "CurrentVolume"),
		"SetGroupVolume":      spec([]string{"InstanceID", "DesiredVolume"}),
		"GetGroupMute":        spec(instance, "CurrentMute"),
		"SetGroupMute":        spec([]string{"InstanceID", "DesiredMute"}),
		"SnapshotGroupVolume": spec(instance),
	},
	ContentDirectoryPath: {
		"Browse": spec(
			[]string{"ObjectID", "BrowseFlag", "Filter", "StartingIndex", "RequestedCount", "SortCriteria"},
			"Result", "NumberReturned", "TotalMatches", "UpdateID",
		),
	},
	ZoneGroupTopologyPath: {
		"GetZoneGroupState": spec(nil, "ZoneGroupState"),
		"GetZoneGroupAttributes": spec(nil,
			"CurrentZoneGroupName", "CurrentZoneGroupID", "CurrentZonePlayerUUIDsInGroup", "CurrentMuseHouseholdId",
		),
	},
	DevicePropertiesPath: {
		"GetZoneAttributes": spec(nil, "CurrentZoneName", "CurrentIcon", "CurrentConfiguration"),
		"GetHouseholdID":    spec(nil, "CurrentHouseholdID"),
		"GetLEDState":       spec(nil, "CurrentLEDState"),
		"SetLEDState":       spec([]string{"DesiredLEDState"}),
	},
}

// Lookup returns a copy of the declared arguments of an action.
func Lookup(servicePath, action string) (ActionSpec, error) {
	actions, ok := catalog[servicePath]
	if !ok {
		return ActionSpec{}, fmt.Errorf("%w: unknown service %s", ErrUnknownAction, servicePath)
	}
	s, ok := actions[action]
	if !ok {
		return ActionSpec{}, fmt.Errorf("%w: %s has no action %s", ErrUnknownAction, servicePath, action)
	}
	return ActionSpec{In: slices.Clone(s.In), Out: slices.Clone(s.Out)}, nil
}

// ServiceID derives the service name from a control path: the second-to-last
// path segment, e.g. "AVTransport" for /MediaRenderer/AVTransport/Control.
func ServiceID(servicePath string) string {
	segments := strings.Split(strings.Trim(servicePath, "/"), "/")
	if len(segments) < 2 {
		return segments[0]
	}
	return segments[len(segments)-2]
}

// ServiceURN returns the namespace used in envelopes for a service.
func ServiceURN(service string) string {
	return "urn:schemas-upnp-org:service:" + service + ":1"
}
