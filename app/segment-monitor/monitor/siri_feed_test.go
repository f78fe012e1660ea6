package monitor

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

// sample payload in the MTA BusTime style, with value-wrapped scalars and a
// single VehicleMonitoringDelivery object instead of a list
const siriSamplePayload = `{
  "Siri": {
    "ServiceDelivery": {
      "VehicleMonitoringDelivery": {
        "VehicleActivity": [
          {
            "RecordedAtTime": "2025-06-10T17:30:00-04:00",
            "MonitoredVehicleJourney": {
              "LineRef": {"value": "M5"},
              "DirectionRef": {"value": "0"},
              "VehicleRef": {"value": "5678"},
              "Monitored": true,
              "FramedVehicleJourneyRef": {
                "DatedVehicleJourneyRef": {"value": "trip1"}
              },
              "MonitoredCall": {
                "StopPointRef": {"value": "S2"},
                "VehicleAtStop": true
              }
            }
          },
          {
            "RecordedAtTime": "2025-06-10T17:30:05-04:00",
            "MonitoredVehicleJourney": {
              "LineRef": "M5",
              "PublishedLineName": "5th Avenue",
              "DirectionRef": "1",
              "VehicleRef": "9999",
              "Monitored": false,
              "MonitoredCall": {
                "StopPointRef": "S7"
              }
            }
          },
          {
            "RecordedAtTime": "2025-06-10T17:30:10-04:00",
            "MonitoredVehicleJourney": {
              "LineRef": "M5",
              "VehicleRef": "1111",
              "MonitoredCall": {}
            }
          }
        ]
      }
    }
  }
}`

func TestParseSiriVehicleUpdates(t *testing.T) {
	is := is.New(t)
	updates, err := parseSiriVehicleUpdates(testLogger(), []byte(siriSamplePayload))
	is.NoErr(err)

	// the activity with no StopPointRef is skipped
	is.Equal(len(updates), 2)

	first := updates[0]
	is.Equal(first.VehicleId, "5678")
	is.Equal(first.RouteId, "M5")
	is.Equal(first.DirectionId, "0")
	is.Equal(first.TripId, "trip1")
	is.Equal(first.StopId, "S2")
	is.Equal(first.Status, StoppedAt)

	// unmonitored journeys surface as Stale so trackers only advance markers
	second := updates[1]
	is.Equal(second.VehicleId, "9999")
	is.Equal(second.StopId, "S7")
	is.Equal(second.Status, Stale)
	is.Equal(second.Timestamp-first.Timestamp, int64(5))
}

func TestParseSiriVehicleUpdates_deliveryList(t *testing.T) {
	is := is.New(t)

	// some deployments send VehicleMonitoringDelivery as a list
	payload := `{
  "Siri": {
    "ServiceDelivery": {
      "VehicleMonitoringDelivery": [
        {
          "VehicleActivity": [
            {
              "RecordedAtTime": "2025-06-10T17:30:00-04:00",
              "MonitoredVehicleJourney": {
                "PublishedLineName": "M5",
                "VehicleRef": "5678",
                "MonitoredCall": {"StopPointRef": "S2"}
              }
            }
          ]
        }
      ]
    }
  }
}`

	updates, err := parseSiriVehicleUpdates(testLogger(), []byte(payload))
	is.NoErr(err)
	is.Equal(len(updates), 1)

	// LineRef absent, the route id falls back to PublishedLineName
	is.Equal(updates[0].RouteId, "M5")
	is.Equal(updates[0].Status, InTransitTo)
}

func TestSiriRequestURL(t *testing.T) {
	is := is.New(t)
	url := siriRequestURL(FeedConfig{
		Url:         "https://example.org/api/siri/vehicle-monitoring.json",
		ApiKey:      "secret",
		LineRef:     "M5",
		DetailLevel: "normal",
	})
	is.True(strings.HasPrefix(url, "https://example.org/api/siri/vehicle-monitoring.json?"))
	is.True(strings.Contains(url, "key=secret"))
	is.True(strings.Contains(url, "LineRef=M5"))
	is.True(strings.Contains(url, "version=2"))
	is.True(strings.Contains(url, "VehicleMonitoringDetailLevel=normal"))
}
