package utilities

// Map converts every element of slice with mapper; a nil slice stays nil
func Map[T any, R any](slice []T, mapper func(T) R) []R {
	if slice == nil {
		return nil
	}
	result := make([]R, 0, len(slice))
	for _, v := range slice {
		result = append(result, mapper(v))
	}
	return result
}
