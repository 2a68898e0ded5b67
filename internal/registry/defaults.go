package registry

import "gpumand/pkg/types"

// Defaults returns the embedded catalog used when no configuration file is
// supplied. Shaped after a real four-service content-pipeline deployment:
// one large native render engine, a containerized TTS engine, a native
// vision/analysis engine, and a containerized fallback LLM kept at the
// lowest priority with a graceful-eviction hook.
func Defaults() []types.ServiceDescriptor {
	return []types.ServiceDescriptor{
		{
			Name:           "render-engine",
			Kind:           types.KindNative,
			VRAMMB:         20000,
			Priority:       100,
			HealthURL:      "http://localhost:8188/system_stats",
			HealthTimeoutS: 120,
			WarmupS:        30,
			Phases:         []int{4},
			StartCmd:       "/opt/gpuman/start-render-engine.sh",
			StopCmd:        "pkill -f 'render-engine.*8188'",
			PIDFile:        "/var/run/gpuman/render-engine.pid",
		},
		{
			Name:           "tts-engine",
			Kind:           types.KindContainerized,
			VRAMMB:         4000,
			Priority:       50,
			HealthURL:      "http://localhost:50000/docs",
			HealthTimeoutS: 60,
			WarmupS:        10,
			Phases:         []int{3},
			ContainerID:    "gpuman_tts_engine",
		},
		{
			Name:           "vision-engine",
			Kind:           types.KindNative,
			VRAMMB:         4000,
			Priority:       40,
			HealthURL:      "http://localhost:8099/health",
			HealthTimeoutS: 90,
			WarmupS:        20,
			Phases:         []int{2},
			StartCmd:       "/opt/gpuman/start-vision-engine.sh",
			StopCmd:        "pkill -f vision-engine",
			PIDFile:        "/var/run/gpuman/vision-engine.pid",
		},
		{
			Name:             "fallback-llm",
			Kind:             types.KindContainerized,
			VRAMMB:           18000,
			Priority:         10,
			HealthURL:        "http://localhost:11434/api/tags",
			HealthTimeoutS:   30,
			WarmupS:          5,
			Phases:           []int{},
			ContainerID:      "gpuman_fallback_llm",
			GracefulEvictURL: "http://localhost:11434/api/generate",
		},
	}
}
