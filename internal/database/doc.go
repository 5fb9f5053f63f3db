/*
包 database 为报告持久化提供 GORM 连接与连接池管理。

Open 按驱动名选择方言（postgres、mysql、纯 Go 实现的 sqlite），
PoolManager 负责连接池参数、后台探活与事务执行；
WithTransactionRetry 对死锁、序列化失败等错误做指数退避重试。
*/
package database
