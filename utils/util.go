package utils

// Find 按ID筛选数据
// 参数：dataMap-ID到数据的索引，data-全部数据（保持原有顺序），ids-要查找的ID
// 返回：找到的数据（按ids顺序）与不存在的ID；ids为空时返回全部数据
func Find[K comparable, T any](dataMap map[K]T, data []T, ids []K) (okData []T, failedIDs []K) {
	if len(ids) == 0 {
		return data, nil
	}
	okData = make([]T, 0, len(ids))
	for _, id := range ids {
		if d, ok := dataMap[id]; ok {
			okData = append(okData, d)
		} else {
			failedIDs = append(failedIDs, id)
		}
	}
	return
}
