// Package service 包含了应用的业务逻辑层。
package service

// Centroid 计算一组向量的逐维算术平均，代表多分块来源或主题聚类的整体语义。
// 空输入返回 nil。
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for _, vector := range vectors {
		for i, v := range vector {
			if i >= dims {
				break
			}
			sum[i] += float64(v)
		}
	}
	centroid := make([]float32, dims)
	for i, v := range sum {
		centroid[i] = float32(v / float64(len(vectors)))
	}
	return centroid
}
