/*
包 cache 封装 go-redis 客户端，为报告存储提供键值与有序集合索引操作。

Manager 统一键前缀（Key）、可选 TLS、关闭语义（ErrClosed）与后台健康检查；
GetJSON/SetJSON 负责序列化，IndexAdd/IndexNewest 维护按时间排序的索引。
未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
