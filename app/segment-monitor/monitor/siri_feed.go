package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/metromind/metromind/foundation/httpclient"
)

// SIRI VehicleMonitoring json is inconsistent across deployments: scalar fields
// sometimes arrive wrapped as {"value": "..."} and VehicleMonitoringDelivery is
// an object or a list. The types below normalize both shapes.

// flexString unwraps a field that is either a bare json string or {"value": string}
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*f = flexString(plain)
		return nil
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		*f = flexString(wrapped.Value)
		return nil
	}
	*f = ""
	return nil
}

type siriEnvelope struct {
	Siri struct {
		ServiceDelivery struct {
			VehicleMonitoringDelivery vehicleMonitoringDeliveries `json:"VehicleMonitoringDelivery"`
		} `json:"ServiceDelivery"`
	} `json:"Siri"`
}

type vehicleMonitoringDeliveries []vehicleMonitoringDelivery

func (d *vehicleMonitoringDeliveries) UnmarshalJSON(data []byte) error {
	var list []vehicleMonitoringDelivery
	if err := json.Unmarshal(data, &list); err == nil {
		*d = list
		return nil
	}
	var single vehicleMonitoringDelivery
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*d = vehicleMonitoringDeliveries{single}
	return nil
}

type vehicleMonitoringDelivery struct {
	VehicleActivity []vehicleActivity `json:"VehicleActivity"`
}

type vehicleActivity struct {
	RecordedAtTime          string `json:"RecordedAtTime"`
	MonitoredVehicleJourney struct {
		LineRef                 flexString `json:"LineRef"`
		PublishedLineName       flexString `json:"PublishedLineName"`
		DirectionRef            flexString `json:"DirectionRef"`
		VehicleRef              flexString `json:"VehicleRef"`
		Monitored               *bool      `json:"Monitored"`
		FramedVehicleJourneyRef struct {
			DatedVehicleJourneyRef flexString `json:"DatedVehicleJourneyRef"`
		} `json:"FramedVehicleJourneyRef"`
		MonitoredCall struct {
			StopPointRef  flexString `json:"StopPointRef"`
			VehicleAtStop *bool      `json:"VehicleAtStop"`
		} `json:"MonitoredCall"`
	} `json:"MonitoredVehicleJourney"`
}

// siriRequestURL builds the VehicleMonitoring request from the feed configuration
func siriRequestURL(cfg FeedConfig) string {
	q := make(url.Values)
	q.Set("key", cfg.ApiKey)
	q.Set("version", "2")
	q.Set("VehicleMonitoringDetailLevel", cfg.DetailLevel)
	if cfg.LineRef != "" {
		q.Set("LineRef", cfg.LineRef)
	}
	if cfg.DirectionRef != "" {
		q.Set("DirectionRef", cfg.DirectionRef)
	}
	return fmt.Sprintf("%s?%s", cfg.Url, q.Encode())
}

// getSiriVehicleUpdates retrieves the SIRI VehicleMonitoring feed and converts
// each usable VehicleActivity into a VehicleUpdate. Records missing the fields
// required for stop tracking are counted and skipped, never fatal.
func getSiriVehicleUpdates(log *log.Logger, client *http.Client, cfg FeedConfig) ([]VehicleUpdate, error) {
	body, err := httpclient.GetBytes(client, siriRequestURL(cfg))
	if err != nil {
		return nil, err
	}
	return parseSiriVehicleUpdates(log, body)
}

func parseSiriVehicleUpdates(log *log.Logger, body []byte) ([]VehicleUpdate, error) {
	var envelope siriEnvelope
	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling siri response: %w", err)
	}

	var updates []VehicleUpdate
	skipped := 0
	for _, delivery := range envelope.Siri.ServiceDelivery.VehicleMonitoringDelivery {
		for _, activity := range delivery.VehicleActivity {
			update, ok := vehicleUpdateFromActivity(activity)
			if !ok {
				skipped++
				continue
			}
			updates = append(updates, update)
		}
	}
	if skipped > 0 {
		log.Printf("skipped %d siri vehicle activities missing required fields", skipped)
	}
	return updates, nil
}

// vehicleUpdateFromActivity extracts a VehicleUpdate, reporting ok false when
// the activity lacks the vehicle, stop or time needed for tracking
func vehicleUpdateFromActivity(activity vehicleActivity) (VehicleUpdate, bool) {
	journey := activity.MonitoredVehicleJourney

	recordedAt, err := time.Parse(time.RFC3339, activity.RecordedAtTime)
	if err != nil {
		return VehicleUpdate{}, false
	}
	vehicleRef := string(journey.VehicleRef)
	stopRef := string(journey.MonitoredCall.StopPointRef)
	if vehicleRef == "" || stopRef == "" {
		return VehicleUpdate{}, false
	}

	routeId := string(journey.LineRef)
	if routeId == "" {
		routeId = string(journey.PublishedLineName)
	}

	status := InTransitTo
	if journey.Monitored != nil && !*journey.Monitored {
		status = Stale
	} else if journey.MonitoredCall.VehicleAtStop != nil && *journey.MonitoredCall.VehicleAtStop {
		status = StoppedAt
	}

	return VehicleUpdate{
		VehicleId:   vehicleRef,
		RouteId:     routeId,
		DirectionId: string(journey.DirectionRef),
		TripId:      string(journey.FramedVehicleJourneyRef.DatedVehicleJourneyRef),
		StopId:      stopRef,
		Timestamp:   recordedAt.Unix(),
		Status:      status,
	}, true
}
