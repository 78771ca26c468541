package datasets

// Transform modifies a loaded single-task sample, e.g. cropping or
// augmenting it.
type Transform func(sample *Array) (*Array, error)

// TaskTransform modifies the per-task samples of one multi-task example.
type TaskTransform func(samples map[string]*Array) (map[string]*Array, error)

// TargetTransform modifies a target label.
type TargetTransform func(target int) int

// TaskLoader loads the file at path for task.
type TaskLoader func(path, task string, cfg Config) (*Array, error)

// Compose chains transforms, applied in order.
func Compose(transforms ...Transform) Transform {
	return func(sample *Array) (*Array, error) {
		var err error
		for _, t := range transforms {
			if sample, err = t(sample); err != nil {
				return nil, err
			}
		}
		return sample, nil
	}
}

// PerTask applies transform to the sample of each listed task, leaving the
// other tasks untouched.
func PerTask(transform Transform, tasks ...string) TaskTransform {
	return func(samples map[string]*Array) (map[string]*Array, error) {
		for _, task := range tasks {
			sample, ok := samples[task]
			if !ok {
				continue
			}
			out, err := transform(sample)
			if err != nil {
				return nil, err
			}
			samples[task] = out
		}
		return samples, nil
	}
}
