package retry

import "context"

// DoWithResultTyped 是 Retryer.DoWithResult 的泛型封装，
// crew 用它包裹单次 Provider 调用，免去结果的类型断言。
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
