/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与基于 context 的运行循环。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 等生命周期方法。同一进程中的
    API 服务与 /metrics 服务各使用一个 Manager。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小
    与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 运行循环：Run 阻塞直到 context 取消或服务异常退出，随后优雅关闭。
  - 错误传播：Errors() 返回异步错误通道。
  - 监听地址：Addr 在启动后返回实际端口，便于 ":0" 测试。
*/
package server
