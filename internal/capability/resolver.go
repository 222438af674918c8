package capability

import (
	"fmt"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// Substitution records one encoder fallback decision so the user can see
// what was swapped and why.
type Substitution struct {
	Requested string `json:"requested"`
	Chosen    string `json:"chosen"`
	Reason    string `json:"reason"`
}

func (s Substitution) String() string {
	return fmt.Sprintf("video encoder %q unavailable, using %q (%s)", s.Requested, s.Chosen, s.Reason)
}

// ResolveEncoder picks the video encoder a recording will use. It walks
// preferred, then the profile's preference order, then the best verified
// encoder overall. Results must be sorted (see SortResults). Exhaustion is
// a hard error since recording is impossible without a video encoder.
//
// Before the first verification sweep completes the results are empty; in
// that case a software encoder is chosen unverified rather than refusing
// to record.
func ResolveEncoder(preferred string, preference []string, results []types.EncoderTestResult) (string, *Substitution, error) {
	requested := preferred
	if requested == "" && len(preference) > 0 {
		requested = preference[0]
	}

	if len(results) == 0 {
		return resolveUnverified(requested, preference)
	}

	if preferred != "" && isAvailable(results, preferred) {
		return preferred, nil, nil
	}
	for _, name := range preference {
		if !isAvailable(results, name) {
			continue
		}
		if name == requested {
			return name, nil, nil
		}
		return name, &Substitution{Requested: requested, Chosen: name, Reason: unavailableReason(results, requested)}, nil
	}
	for _, result := range results {
		if !result.Available {
			break // sorted available-first, nothing usable beyond this point
		}
		if result.Encoder == requested {
			return requested, nil, nil
		}
		return result.Encoder, &Substitution{
			Requested: requested,
			Chosen:    result.Encoder,
			Reason:    unavailableReason(results, requested),
		}, nil
	}

	return "", nil, fmt.Errorf("no working video encoder found (requested %q)", requested)
}

// resolveUnverified picks a software encoder without verification. Software
// encoders need no driver or GPU, so this is the safest blind choice.
func resolveUnverified(requested string, preference []string) (string, *Substitution, error) {
	chosen := ""
	for _, name := range preference {
		if strings.HasPrefix(name, "lib") {
			chosen = name
			break
		}
	}
	if chosen == "" {
		chosen = "libx264"
	}
	if requested == "" || requested == chosen {
		return chosen, nil, nil
	}
	return chosen, &Substitution{
		Requested: requested,
		Chosen:    chosen,
		Reason:    "encoder verification has not run yet",
	}, nil
}

func isAvailable(results []types.EncoderTestResult, name string) bool {
	for _, result := range results {
		if result.Encoder == name {
			return result.Available
		}
	}
	return false
}

// unavailableReason explains why the requested encoder was passed over.
func unavailableReason(results []types.EncoderTestResult, requested string) string {
	for _, result := range results {
		if result.Encoder != requested {
			continue
		}
		if result.Error != "" {
			return result.Error
		}
		return "failed verification"
	}
	return "not recognized on this platform"
}
