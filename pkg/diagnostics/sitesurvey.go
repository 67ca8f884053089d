package diagnostics

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// neighbourCount is how many networks a survey finds.
const neighbourCount = 20

// Channels of the 5GHz band per bandwidth (20, 40, 80MHz).
var channels5GHz = [][]int{
	{36, 40, 44, 48, 149, 153, 157, 161, 165},
	{38, 46, 151, 159},
	{42, 155},
}

// SiteSurveyDefinition returns the neighbouring WiFi diagnostic. It only
// exists in the TR-181 model.
func SiteSurveyDefinition() *Definition {
	return &Definition{
		Name:      SiteSurvey,
		RootTR181: params.RootTR181 + "WiFi.NeighboringWiFiDiagnostic.",
		Validate:  alwaysValid,
		Results: map[string]ResultFunc{
			ResultDefault: surveyComplete,
			ResultError:   errorResult("", clearSurvey),
		},
	}
}

func clearSurvey(r *Run) {
	params.DeletePrefix(r.Store, r.Root+"Result.")
	r.Set("ResultNumberOfEntries", "0")
}

func surveyComplete(r *Run) {
	clearSurvey(r)
	r.Set(stateField, StateComplete)
	r.Set("ResultNumberOfEntries", strconv.Itoa(neighbourCount))

	base := r.Root + "Result."
	r.Store.Set(base, params.Object(false))

	for i := 1; i <= neighbourCount; i++ {
		wifi5 := rand.IntN(2) == 0
		var (
			bandwidth int
			channel   int
			radio     = 1
		)
		if wifi5 {
			bandwidth = rand.IntN(3)
			options := channels5GHz[bandwidth]
			channel = options[rand.IntN(len(options))]
			radio = 2
		} else {
			bandwidth = rand.IntN(2)
			channel = 1 + rand.IntN(13)
		}

		encryption := "AES"
		if rand.IntN(2) == 0 {
			encryption = "TKIP"
		}

		row := base + strconv.Itoa(i) + params.Separator
		leaf := func(field, value, typ string) {
			r.Store.Set(row+field, params.Leaf(false, value, typ))
		}

		r.Store.Set(row, params.Object(false))
		leaf("BSSID", randomMAC(), params.TypeString)
		leaf("BasicDataTransferRates", "", params.TypeString)
		leaf("BeaconPeriod", "0", params.TypeUnsignedInt)
		leaf("Channel", strconv.Itoa(channel), params.TypeUnsignedInt)
		leaf("DTIMPeriod", "0", params.TypeUnsignedInt)
		leaf("EncryptionMode", encryption, params.TypeString)
		leaf("Mode", "0", params.TypeString)
		leaf("Noise", "0", params.TypeUnsignedInt)
		leaf("OperatingChannelBandwidth", fmt.Sprintf("%dMHz", 20<<bandwidth), params.TypeString)
		leaf("OperatingFrequencyBand", "", params.TypeString)
		leaf("OperatingStandards", "", params.TypeString)
		leaf("Radio", fmt.Sprintf("%sWiFi.Radio.%d", params.RootTR181, radio), params.TypeString)
		leaf("SSID", fmt.Sprintf("my beautiful SSID %d", i), params.TypeString)
		leaf("SecurityModeEnabled", "Encrypted", params.TypeString)
		leaf("SignalStrength", strconv.Itoa(-(30 + rand.IntN(66))), params.TypeInt)
		leaf("SupportedDataTransferRates", "", params.TypeString)
		leaf("SupportedStandards", "", params.TypeString)
	}
}

func randomMAC() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(rand.IntN(256))
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}
