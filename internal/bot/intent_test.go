package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{name: "start", text: "/start", want: Intent{Kind: IntentStart}},
		{name: "start with payload", text: "/START deep-link", want: Intent{Kind: IntentStart}},
		{name: "cancel", text: "/cancel@HouseRatingBot", want: Intent{Kind: IntentCancel}},
		{name: "cancel button", text: "Отмена", want: Intent{Kind: IntentCancel}},
		{name: "button with padding", text: "  Топ-10 ", want: Intent{Kind: IntentTop}},
		{name: "compare button", text: "Сравнить дома", want: Intent{Kind: IntentCompare}},
		{name: "address", text: "адрес: Москва, Тверская, 12", want: Intent{Kind: IntentAddress, Address: "Москва, Тверская, 12"}},
		{name: "address upper case", text: "АДРЕС:Арбат 1", want: Intent{Kind: IntentAddress, Address: "Арбат 1"}},
		{name: "empty address", text: "адрес:", want: Intent{Kind: IntentEmptyAddress}},
		{name: "comma separated", text: "55.7522, 37.6156", want: Intent{Kind: IntentCoordinates, Latitude: 55.7522, Longitude: 37.6156, Radius: 1000}},
		{name: "with radius", text: "55.7522,37.6156,500", want: Intent{Kind: IntentCoordinates, Latitude: 55.7522, Longitude: 37.6156, Radius: 500}},
		{name: "space separated", text: "55.7522 37.6156   250.5", want: Intent{Kind: IntentCoordinates, Latitude: 55.7522, Longitude: 37.6156, Radius: 250.5}},
		{name: "trailing comma", text: "55.7522, 37.6156,", want: Intent{Kind: IntentCoordinates, Latitude: 55.7522, Longitude: 37.6156, Radius: 1000}},
		{name: "negative", text: "-33.86 151.2", want: Intent{Kind: IntentCoordinates, Latitude: -33.86, Longitude: 151.2, Radius: 1000}},
		{name: "non-numeric pair", text: "55.7 восток", want: Intent{Kind: IntentBadCoordinates}},
		{name: "not a number", text: "NaN 37.6", want: Intent{Kind: IntentBadCoordinates}},
		{name: "infinite radius", text: "55.7 37.6 Inf", want: Intent{Kind: IntentBadCoordinates}},
		{name: "one token", text: "55.7522", want: Intent{Kind: IntentUnknown}},
		{name: "four tokens", text: "1, 2, 3, 4", want: Intent{Kind: IntentUnknown}},
		{name: "unknown command", text: "/help", want: Intent{Kind: IntentUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestIntent_Command(t *testing.T) {
	assert.True(t, Intent{Kind: IntentStart}.Command())
	assert.True(t, Intent{Kind: IntentCancel}.Command())
	assert.True(t, Intent{Kind: IntentHistory}.Command())
	assert.False(t, Intent{Kind: IntentCoordinates}.Command())
	assert.False(t, Intent{Kind: IntentAddress}.Command())
	assert.False(t, Intent{Kind: IntentUnknown}.Command())
}

func TestIntentKind_String(t *testing.T) {
	assert.Equal(t, "coordinates", IntentCoordinates.String())
	assert.Equal(t, "unknown", IntentKind(-1).String())
}
